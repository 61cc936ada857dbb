package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeFiresImmediately(t *testing.T) {
	l := NewLocal("alice")
	var got []string
	cancel := l.Subscribe(func(id string) { got = append(got, id) })
	defer cancel()

	assert.Equal(t, []string{"alice"}, got)
}

func TestSetNotifiesOnChange(t *testing.T) {
	l := NewLocal("")
	var got []string
	cancel := l.Subscribe(func(id string) { got = append(got, id) })

	l.Set("bob")
	l.Set("bob")
	l.Set("")
	assert.Equal(t, []string{"", "bob", ""}, got)
	assert.Equal(t, "", l.CurrentUserID())

	cancel()
	l.Set("carol")
	assert.Len(t, got, 3)
	assert.Equal(t, "carol", l.CurrentUserID())
}
