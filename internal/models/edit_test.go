package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEditOrderedBefore(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	a := Edit{EditID: 1, DateEffective: &base}
	b := Edit{EditID: 2, DateEffective: &later}
	assert.True(t, a.OrderedBefore(&b))
	assert.False(t, b.OrderedBefore(&a))

	// Ties resolve by ledger id.
	c := Edit{EditID: 3, DateEffective: &base}
	assert.True(t, a.OrderedBefore(&c))
	assert.False(t, c.OrderedBefore(&a))

	// Edits without an effective date sort after everything.
	d := Edit{EditID: 4}
	assert.True(t, a.OrderedBefore(&d))
	assert.False(t, d.OrderedBefore(&a))
	assert.False(t, d.OrderedBefore(&d))
}

func TestEditFieldRef(t *testing.T) {
	e := Edit{SourceTable: "contacts", SourceRow: "c1", SourceColumn: "email"}
	assert.Equal(t, FieldRef{Table: "contacts", Row: "c1", Column: "email"}, e.FieldRef())
}
