// SPDX-License-Identifier: Apache-2.0

// gen-gss-oids writes the well-known name type and mechanism OID tables used by the gssapi
// package.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/jcmturner/gofork/encoding/asn1"
)

type entry struct {
	name    string
	desc    string
	oid     string
	altOids []string
}

// ORDER MATTERS - must be the same as nametypes.go
var nameTypeEntries = []entry{
	{"GSS_NT_HOSTBASED_SERVICE", "service@host", "1.2.840.113554.1.2.1.4", []string{"1.3.6.1.5.6.2"}},
	{"GSS_NT_USER_NAME", "named local user", "1.2.840.113554.1.2.1.1", nil},
	{"GSS_NT_MACHINE_UID_NAME", "numeric local user ID", "1.2.840.113554.1.2.1.2", nil},
	{"GSS_NT_STRING_UID_NAME", "local user ID as a digit string", "1.2.840.113554.1.2.1.3", nil},
	{"GSS_NT_ANONYMOUS", "anonymous principal", "1.3.6.1.5.6.3", nil},
	{"GSS_NT_EXPORT_NAME", "exported mechanism name", "1.3.6.1.5.6.4", nil},
	{"GSS_KRB5_NT_PRINCIPAL_NAME", "Kerberos principal name", "1.2.840.113554.1.2.2.1", nil},
	{"GSS_KRB5_NT_ENTERPRISE_NAME", "Kerberos enterprise principal name", "1.2.840.113554.1.2.2.6", nil},
}

// ORDER MATTERS - must be the same as mechs.go
//
// the alternate krb5 OIDs are the pre-RFC OID and the incorrect OID shipped with Windows 2000
var mechEntries = []entry{
	{"GSS_MECH_KRB5", "Kerberos V5", "1.2.840.113554.1.2.2", []string{"1.3.6.1.5.2", "1.2.840.48018.1.2.2"}},
	{"GSS_MECH_IAKERB", "IAKERB", "1.3.6.1.5.2.5", nil},
	{"GSS_MECH_SPNEGO", "SPNEGO", "1.3.6.1.5.5.2", nil},
}

var codeTemplate = `// SPDX-License-Identifier: Apache-2.0

package gssapi

// GENERATED CODE: DO NOT EDIT

var {{.Var}} = []struct {
	id        {{.Type}}
	name      string
	desc      string
	oidString string
	oid       Oid
	altOids   []Oid
}{
{{range .Entries}}
	// {{.Oid.S}}
	{ {{.Name}},
		"{{.Name}}",
		"{{.Desc}}",
		"{{.Oid.S}}",
		Oid{ {{bytesFormat .Oid.B}} },
		[]Oid{ {{- range .AltOids}}
			{ {{- bytesFormat .B}} }, // {{ .S }}
		{{ end}} }},
{{end}}
}
`

type oid struct {
	S string
	B []byte
}

type tmplEntry struct {
	Name    string
	Desc    string
	Oid     oid
	AltOids []oid
}

type tmplParam struct {
	Var     string
	Type    string
	Entries []tmplEntry
}

func main() {
	output := flag.String("o", "", "output file name")
	kind := flag.String("kind", "names", "table to generate: names or mechs")
	flag.Parse()

	var params tmplParam
	switch *kind {
	case "names":
		params = tmplParam{Var: "nameTypes", Type: "gssNameTypeImpl", Entries: makeEntries(nameTypeEntries)}
	case "mechs":
		params = tmplParam{Var: "mechs", Type: "gssMechImpl", Entries: makeEntries(mechEntries)}
	default:
		log.Fatalf("unknown table kind %q", *kind)
	}

	fh := os.Stdout
	var err error
	if *output != "" {
		fh, err = os.Create(*output)
		if err != nil {
			log.Fatal(err)
		}
	}

	t := template.Must(template.New("code").Funcs(template.FuncMap{"bytesFormat": bytesFormat}).Parse(codeTemplate))
	if err := t.Execute(fh, params); err != nil {
		log.Fatal(err)
	}

	if *output != "" {
		_ = fh.Close()
	}
}

func makeEntries(entries []entry) []tmplEntry {
	ret := make([]tmplEntry, len(entries))

	for i, e := range entries {
		ret[i] = tmplEntry{
			Name: e.name,
			Desc: e.desc,
			Oid:  oid{S: e.oid, B: encode(e.oid)},
		}

		for _, alt := range e.altOids {
			ret[i].AltOids = append(ret[i].AltOids, oid{S: alt, B: encode(alt)})
		}
	}

	return ret
}

// encode returns the DER value bytes of a dotted OID, without the tag and length
func encode(s string) []byte {
	elms := strings.Split(s, ".")
	objID := make(asn1.ObjectIdentifier, len(elms))

	for i, elm := range elms {
		j, err := strconv.ParseUint(elm, 10, 31)
		if err != nil {
			panic(err)
		}
		objID[i] = int(j)
	}

	enc, err := asn1.Marshal(objID)
	if err != nil {
		panic(fmt.Errorf("encoding %s: %w", s, err))
	}

	return enc[2:]
}

func bytesFormat(b []byte) string {
	strs := make([]string, len(b))
	for i, s := range b {
		strs[i] = fmt.Sprintf("0x%02x", s)
	}
	return strings.Join(strs, ", ")
}
