// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Local version of testify/assert  with some extensions
type myassert struct {
	*assert.Assertions

	t *testing.T
}

// Fail the test immediately on error
func (a *myassert) NoErrorFatal(err error) {
	a.NoError(err)
	if err != nil {
		a.t.Logf("Stopping test %s due to fatal error", a.t.Name())
		a.t.FailNow()
	}
}

func NewAssert(t *testing.T) *myassert {
	a := assert.New(t)
	return &myassert{a, t}
}

func TestNoErrorFatalOK(t *testing.T) {
	ch := make(chan bool)
	tt := &testing.T{}

	go func() {
		defer func() {
			ch <- true
		}()

		assert := NewAssert(tt)
		assert.NoErrorFatal(nil)
	}()

	<-ch

	if tt.Failed() {
		t.Error("test should not have failed")
	}
}

func TestNoErrorFatalWithError(t *testing.T) {
	ch := make(chan bool)
	tt := &testing.T{}

	go func() {
		defer func() {
			ch <- true
		}()

		assert := NewAssert(tt)
		assert.NoErrorFatal(errors.New("test"))
	}()

	<-ch

	if !tt.Failed() {
		t.Error("test should have failed")
	}
}
