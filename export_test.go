// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

func TestExportImportContext(t *testing.T) {
	assert := NewAssert(t)

	e := newTestEngine(t, nil)
	ini, acc := establish(t, e, []InitSecContextOption{WithInitiatorFlags(allServices)})

	var toks []Buffer
	for i := 0; i < 3; i++ {
		tok, _, err := e.Wrap(ini.Context, true, QoPDefault, []byte{byte(i)})
		assert.NoErrorFatal(err)
		toks = append(toks, tok)
	}

	_, _, _, err := e.Unwrap(acc.Context, toks[0])
	assert.NoErrorFatal(err)

	before, err := e.InquireContext(acc.Context)
	assert.NoErrorFatal(err)

	exported, err := e.ExportSecContext(acc.Context)
	assert.NoErrorFatal(err)
	assert.NotEmpty(exported)

	// the exporting engine no longer knows the context
	_, err = e.ContextTime(acc.Context)
	assert.ErrorIs(err, ErrNoContext)

	// a second engine in another "process" takes over
	e2 := newTestEngine(t, nil)
	h, err := e2.ImportSecContext(exported)
	assert.NoErrorFatal(err)
	exported.Release()

	after, err := e2.InquireContext(h)
	assert.NoErrorFatal(err)
	assert.Equal(before.ID, after.ID)
	assert.Equal(before.Flags, after.Flags)
	assert.True(after.Open)
	assert.False(after.LocallyInitiated)
	assert.Equal(Indefinite, after.Lifetime)

	s, _, err := e2.DisplayName(after.SrcName)
	assert.NoError(err)
	assert.Equal("default@EXAMPLE", s)

	// sequence numbers carry on where the exporter stopped
	out, _, _, err := e2.Unwrap(h, toks[1])
	assert.NoError(err)
	assert.Equal([]byte{1}, []byte(out))

	_, _, _, err = e2.Unwrap(h, toks[0])
	assert.ErrorIs(err, InfoDuplicateToken)

	tok, _, err := e2.Wrap(h, true, QoPDefault, []byte("reply"))
	assert.NoErrorFatal(err)
	out, _, _, err = e.Unwrap(ini.Context, tok)
	assert.NoError(err)
	assert.Equal([]byte("reply"), []byte(out))
}

func TestExportInitiatorLifetime(t *testing.T) {
	assert := NewAssert(t)

	clock := newTestClock()
	m := newMockMech(func(m *mockMech) { m.ctxLife = time.Hour })
	e := newTestEngine(t, []EngineOption{WithClock(clock.Now)}, m)

	ini, _ := establish(t, e, nil)

	exported, err := e.ExportSecContext(ini.Context)
	assert.NoErrorFatal(err)

	clock.Advance(15 * time.Minute)

	h, err := e.ImportSecContext(exported)
	assert.NoErrorFatal(err)

	info, err := e.InquireContext(h)
	assert.NoErrorFatal(err)
	assert.True(info.LocallyInitiated)
	assert.Equal(uint32(45*60), info.Lifetime)

	s, _, err := e.DisplayName(info.TargName)
	assert.NoError(err)
	assert.Equal("host/localhost@EXAMPLE", s)
}

func TestImportSecContextErrors(t *testing.T) {
	assert := NewAssert(t)

	m2 := newMockMech(func(m *mockMech) { m.oid = testMech2Oid })
	e := newTestEngine(t, nil, newMockMech(), m2)

	id := uuid.New()
	token := func(ec exportedContext) []byte {
		b, err := cbor.Marshal(ec)
		assert.NoErrorFatal(err)
		return b
	}

	state, err := cbor.Marshal(mockState{Key: make([]byte, 32)})
	assert.NoErrorFatal(err)

	good := exportedContext{Version: exportVersion, ID: id[:], Mech: testMechOid, Indefinite: true, State: state}
	_, err = e.ImportSecContext(token(good))
	assert.NoError(err)

	_, err = e.ImportSecContext([]byte("junk"))
	assert.ErrorIs(err, ErrDefectiveToken)

	bad := good
	bad.Version = exportVersion + 1
	_, err = e.ImportSecContext(token(bad))
	assert.ErrorIs(err, ErrDefectiveToken)

	bad = good
	bad.ID = []byte{1, 2, 3}
	_, err = e.ImportSecContext(token(bad))
	assert.ErrorIs(err, ErrDefectiveToken)

	bad = good
	bad.Mech = GSS_MECH_KRB5.Oid()
	_, err = e.ImportSecContext(token(bad))
	assert.ErrorIs(err, ErrBadMech)

	bad = good
	bad.SrcName = marshalExportedName(testMech2Oid, []byte("alice@EXAMPLE"))
	_, err = e.ImportSecContext(token(bad))
	assert.ErrorIs(err, ErrDefectiveToken)

	bad = good
	bad.Indefinite = false
	bad.Expiry = time.Now().Add(-time.Minute).UTC()
	_, err = e.ImportSecContext(token(bad))
	assert.ErrorIs(err, ErrContextExpired)

	bad = good
	bad.State = []byte("junk")
	_, err = e.ImportSecContext(token(bad))
	assert.ErrorIs(err, ErrDefectiveToken)
	_, minor := StatusOf(err)
	assert.Equal(uint32(minorMalformed), minor)
}

func TestExportExpiredContext(t *testing.T) {
	assert := NewAssert(t)

	clock := newTestClock()
	m := newMockMech(func(m *mockMech) { m.ctxLife = time.Minute })
	e := newTestEngine(t, []EngineOption{WithClock(clock.Now)}, m)

	ini, acc := establish(t, e, nil)

	exported, err := e.ExportSecContext(ini.Context)
	assert.NoErrorFatal(err)

	clock.Advance(2 * time.Minute)

	// the context ran out after it was exported
	_, err = e.ImportSecContext(exported)
	assert.ErrorIs(err, ErrContextExpired)

	// and cannot be exported once it has run out
	_, err = e.ExportSecContext(acc.Context)
	assert.ErrorIs(err, ErrContextExpired)

	info, err := e.InquireContext(acc.Context)
	assert.NoErrorFatal(err)
	assert.False(info.Open)
}
