package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

func TestWithActor_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithActor(context.Background(), domain.Actor{ID: "u-1", Name: "alice"})

	a, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u-1", a.ID)
	assert.Equal(t, "alice", a.Name)
}

func TestFromContext_Absent(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestContextProvider(t *testing.T) {
	t.Parallel()

	var p ContextProvider

	_, ok := p.Current(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), domain.Actor{Name: "bob"})
	a, ok := p.Current(ctx)
	assert.True(t, ok)
	assert.Equal(t, "bob", a.Name)
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	p := StaticProvider{Actor: domain.Actor{Name: "service"}}
	a, ok := p.Current(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "service", a.Name)
}
