// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"testing"
	"time"
)

func TestLifetimeFromSeconds(t *testing.T) {
	assert := NewAssert(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	l := LifetimeFromSeconds(Indefinite, now)
	assert.Equal(GssLifetimeIndefinite, l.Status)
	assert.Equal(Indefinite, l.Seconds(now))
	assert.False(l.Expired(now.Add(1000 * time.Hour)))

	l = LifetimeFromSeconds(0, now)
	assert.True(l.Expired(now))
	assert.Equal(uint32(0), l.Seconds(now))

	l = LifetimeFromSeconds(90, now)
	assert.Equal(uint32(90), l.Seconds(now))
	assert.Equal(uint32(30), l.Seconds(now.Add(time.Minute)))
	assert.False(l.Expired(now.Add(89 * time.Second)))
	assert.True(l.Expired(now.Add(90 * time.Second)))
}

func TestRequestedLifetimeDefault(t *testing.T) {
	assert := NewAssert(t)
	now := time.Now()

	assert.Equal(GssLifetimeIndefinite, requestedLifetime(0, now).Status)
	assert.Equal(uint32(10), requestedLifetime(10, now).Seconds(now))
}

func TestEarliest(t *testing.T) {
	assert := NewAssert(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	indef := IndefiniteLifetime()
	expired := GssLifetime{Status: GssLifetimeExpired}
	soon := MakeGssLifetime(now.Add(time.Minute))
	later := MakeGssLifetime(now.Add(time.Hour))

	tests := []struct {
		a, b, want GssLifetime
	}{
		{indef, indef, indef},
		{indef, soon, soon},
		{later, indef, later},
		{soon, later, soon},
		{later, soon, soon},
		{expired, soon, expired},
		{indef, expired, expired},
	}

	for i, tt := range tests {
		assert.Equal(tt.want, earliest(tt.a, tt.b), "case %d", i)
		assert.Equal(tt.want, earliest(tt.b, tt.a), "case %d reversed", i)
	}
}
