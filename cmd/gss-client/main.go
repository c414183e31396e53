// SPDX-License-Identifier: Apache-2.0

// gss-client establishes a security context with gss-server, sends it a wrapped message and
// verifies the MIC the server returns.  Tokens are framed as in the MIT gss-sample programs, so
// it also interoperates with the MIT gss-server.
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

type options struct {
	mech   gssapi.Oid
	flags  gssapi.ContextFlag
	seal   bool
	ccache string
}

func main() {
	port := flag.Int("port", 1234, "remote port to connect to")
	mech := flag.String("mech", "", "use specific mech OID")
	file := flag.Bool("f", false, "message argument names a file to send")
	seal := flag.Bool("seal", false, "seal (encrypt) the message")
	mutual := flag.Bool("mutual", false, "request mutual authentication")
	ccache := flag.String("ccache", "", "credential cache to use instead of the default")
	debug := flag.Bool("debug", false, "enable debugging")
	flag.Parse()

	if flag.NArg() != 3 {
		log.Fatalf("Usage: %s [-port <int>] [-mech <OID>] [-f] [-seal] [-mutual] [-ccache <path>] [-debug] host service msg\n", os.Args[0])
	}

	host := flag.Arg(0)
	service := flag.Arg(1)
	msg := flag.Arg(2)

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := options{
		flags:  gssapi.ContextFlagConf | gssapi.ContextFlagInteg | gssapi.ContextFlagReplay | gssapi.ContextFlagSequence,
		seal:   *seal,
		ccache: *ccache,
	}
	if *mutual {
		opts.flags |= gssapi.ContextFlagMutual
	}
	if *mech != "" {
		oid, err := gssapi.OidFromString(*mech)
		if err != nil {
			log.Fatal(err)
		}
		opts.mech = oid
	}

	msgBuf := []byte(msg)
	if *file {
		var err error
		if msgBuf, err = os.ReadFile(msg); err != nil {
			log.Fatal(err)
		}
	}

	addr := net.JoinHostPort(host, fmt.Sprint(*port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	logger.Debug("connected", "addr", addr)

	e := gssapi.New(gssapi.WithLogger(logger))
	if err := initiate(e, conn, service, msgBuf, opts, logger); err != nil {
		for _, s := range e.StatusMessages(err) {
			logger.Error(s)
		}
		log.Fatal(err)
	}

	fmt.Println("Successfully verified message signature (MIC) from server")
}

// initiate runs the client half of the exchange over conn.
func initiate(e *gssapi.Engine, conn io.ReadWriter, service string, msg []byte, o options, logger *slog.Logger) error {
	target, err := e.ImportName([]byte(service), gssapi.GSS_NT_HOSTBASED_SERVICE.Oid())
	if err != nil {
		return err
	}
	defer e.ReleaseName(target) //nolint:errcheck

	iopts := []gssapi.InitSecContextOption{gssapi.WithInitiatorFlags(o.flags)}
	if o.mech != nil {
		iopts = append(iopts, gssapi.WithInitiatorMech(o.mech))
	}

	if o.ccache != "" {
		var mechs *gssapi.OidSet
		if o.mech != nil {
			mechs = gssapi.NewOidSet()
			if err := mechs.Add(o.mech); err != nil {
				return err
			}
		}

		cred, _, _, err := e.AcquireCred(gssapi.NameHandle{}, 0, mechs, gssapi.CredUsageInitiateOnly, gssapi.WithCredStoreCCache(o.ccache))
		if err != nil {
			return err
		}
		defer e.ReleaseCred(cred) //nolint:errcheck

		iopts = append(iopts, gssapi.WithInitiatorCredential(cred))
	}

	logger.Debug("requested flags", "flags", o.flags)

	var h gssapi.ContextHandle
	defer func() {
		if !h.IsZero() {
			e.DeleteSecContext(h) //nolint:errcheck
		}
	}()

	var input []byte
	for {
		res, err := e.InitSecContext(h, target, input, iopts...)
		if err != nil {
			return err
		}
		h = res.Context

		if len(res.Output) > 0 {
			if err := tokenio.Write(conn, res.Output); err != nil {
				return err
			}
			logger.Debug(fmt.Sprintf("sent context token (%d bytes):\n%s", len(res.Output), tokenio.Format(res.Output)))
		}

		if !res.ContinueNeeded {
			break
		}

		if input, err = tokenio.Read(conn); err != nil {
			return err
		}
		logger.Debug(fmt.Sprintf("read context token (%d bytes):\n%s", len(input), tokenio.Format(input)))
	}
	if err := logContextInfo(e, h, logger); err != nil {
		return err
	}

	outMsg, hasConf, err := e.Wrap(h, o.seal, gssapi.QoPDefault, msg)
	if err != nil {
		return err
	}
	if o.seal && !hasConf {
		logger.Warn("message not encrypted")
	}

	if err := tokenio.Write(conn, outMsg); err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("sent wrap message (%d bytes):\n%s", len(outMsg), tokenio.Format(outMsg)))

	mic, err := tokenio.Read(conn)
	if err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("received MIC message (%d bytes):\n%s", len(mic), tokenio.Format(mic)))

	_, err = e.VerifyMIC(h, msg, mic)
	return err
}

func logContextInfo(e *gssapi.Engine, h gssapi.ContextHandle, logger *slog.Logger) error {
	info, err := e.InquireContext(h)
	if err != nil {
		return err
	}

	logger.Debug("context established",
		"flags", info.Flags,
		"source", displayName(e, info.SrcName),
		"target", displayName(e, info.TargName),
		"expires_in", time.Duration(info.Lifetime)*time.Second,
		"locally_initiated", info.LocallyInitiated,
		"mech", info.Mech,
	)

	return nil
}

// displayName renders and releases a name returned by InquireContext.
func displayName(e *gssapi.Engine, h gssapi.NameHandle) string {
	if h.IsZero() {
		return "<unknown>"
	}
	defer e.ReleaseName(h) //nolint:errcheck

	s, nt, err := e.DisplayName(h)
	if err != nil {
		return err.Error()
	}

	return fmt.Sprintf("%s (%s)", s, nt)
}
