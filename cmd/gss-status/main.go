// SPDX-License-Identifier: Apache-2.0

// gss-status prints the messages for a GSS-API major status or a mechanism minor status:
//
//	gss-status 0x000d0000
//	gss-status -minor 2529638946
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	gssapi "github.com/golang-auth/go-gsscore"
	_ "github.com/golang-auth/go-gsscore/krb5"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gss-status", flag.ContinueOnError)
	minor := fs.Bool("minor", false, "the code is a mechanism minor status")
	mech := fs.String("mech", "", "mechanism OID for -minor; the default mechanism when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: gss-status [-minor] [-mech <OID>] code")
	}

	code, err := strconv.ParseUint(fs.Arg(0), 0, 32)
	if err != nil {
		return fmt.Errorf("bad status code %q: %w", fs.Arg(0), err)
	}

	statusType := gssapi.GSSCode
	var mechOid gssapi.Oid
	if *minor {
		statusType = gssapi.MechCode
		if *mech != "" {
			if mechOid, err = gssapi.OidFromString(*mech); err != nil {
				return err
			}
		}
	}

	e := gssapi.New()
	for msgCtx := uint32(0); ; {
		s, next, err := e.DisplayStatus(uint32(code), statusType, mechOid, msgCtx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, s)

		if next == 0 {
			return nil
		}
		msgCtx = next
	}
}
