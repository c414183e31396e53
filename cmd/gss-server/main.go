// SPDX-License-Identifier: Apache-2.0

// gss-server accepts security contexts from gss-client, prints the message each client sends
// and returns a MIC over it.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"time"

	gssapi "github.com/golang-auth/go-gsscore"
	"github.com/golang-auth/go-gsscore/internal/tokenio"
	_ "github.com/golang-auth/go-gsscore/krb5"
)

func main() {
	port := flag.Int("port", 1234, "local port to listen on")
	keytab := flag.String("keytab", "", "keytab to use instead of the default")
	debug := flag.Bool("debug", false, "enable debugging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	e := gssapi.New(gssapi.WithLogger(logger))

	var cred gssapi.CredHandle
	if *keytab != "" {
		var err error
		cred, _, _, err = e.AcquireCred(gssapi.NameHandle{}, 0, nil, gssapi.CredUsageAcceptOnly, gssapi.WithCredStoreServerKeytab(*keytab))
		if err != nil {
			log.Fatal(err)
		}
		defer e.ReleaseCred(cred) //nolint:errcheck
	}

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatal(err)
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			logger.Error("accept failed", "error", err)
			continue
		}

		go func() {
			defer conn.Close()

			clog := logger.With("remote", conn.RemoteAddr())
			clog.Debug("accepted connection")

			if err := serve(e, conn, cred, os.Stdout, clog); err != nil {
				clog.Error("exchange failed", "error", err, "status", e.StatusMessages(err))
			}
		}()
	}
}

// serve runs the server half of the exchange with one client, writing the received message
// to out.
func serve(e *gssapi.Engine, conn io.ReadWriter, cred gssapi.CredHandle, out io.Writer, logger *slog.Logger) error {
	var aopts []gssapi.AcceptSecContextOption
	if !cred.IsZero() {
		aopts = append(aopts, gssapi.WithAcceptorCredential(cred))
	}

	var h gssapi.ContextHandle
	defer func() {
		if !h.IsZero() {
			e.DeleteSecContext(h) //nolint:errcheck
		}
	}()

	var src gssapi.NameHandle
	defer func() {
		if !src.IsZero() {
			e.ReleaseName(src) //nolint:errcheck
		}
	}()

	for {
		inToken, err := tokenio.Read(conn)
		if err != nil {
			return err
		}
		logger.Debug(fmt.Sprintf("read context token (%d bytes):\n%s", len(inToken), tokenio.Format(inToken)))

		res, err := e.AcceptSecContext(h, inToken, aopts...)
		if res != nil && len(res.Output) > 0 {
			if werr := tokenio.Write(conn, res.Output); werr != nil && err == nil {
				err = werr
			}
			logger.Debug(fmt.Sprintf("sent context token (%d bytes):\n%s", len(res.Output), tokenio.Format(res.Output)))
		}
		if err != nil {
			return err
		}

		h = res.Context
		if !res.DelegatedCred.IsZero() {
			e.ReleaseCred(res.DelegatedCred) //nolint:errcheck
		}
		if !res.SrcName.IsZero() {
			if !src.IsZero() {
				e.ReleaseName(src) //nolint:errcheck
			}
			src = res.SrcName
		}

		if !res.ContinueNeeded {
			logger.Debug("context established",
				"flags", res.Flags,
				"mech", res.Mech,
				"expires_in", time.Duration(res.Lifetime)*time.Second,
			)
			break
		}
	}

	client := "<unknown>"
	if !src.IsZero() {
		if s, _, err := e.DisplayName(src); err == nil {
			client = s
		}
	}

	inMsg, err := tokenio.Read(conn)
	if err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("received wrap message (%d bytes):\n%s", len(inMsg), tokenio.Format(inMsg)))

	msg, conf, _, err := e.Unwrap(h, inMsg)
	if err != nil {
		return err
	}

	protStr := "signed"
	if conf {
		protStr = "sealed"
	}
	fmt.Fprintf(out, "Received %s message from %s: %q\n", protStr, client, msg)

	mic, err := e.GetMIC(h, gssapi.QoPDefault, msg)
	if err != nil {
		return err
	}

	if err := tokenio.Write(conn, mic); err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("sent MIC message (%d bytes):\n%s", len(mic), tokenio.Format(mic)))

	return nil
}
