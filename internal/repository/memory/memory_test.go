package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/repotest"
)

func TestRepositoryContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Repository { return New() })
}

func TestRepository_InjectedFailure(t *testing.T) {
	repo := New()
	boom := errors.New("boom")
	repo.SetError("FindPagesByDatabase", boom)

	_, err := repo.FindPagesByDatabase(context.Background(), "db1")
	assert.ErrorIs(t, err, boom)

	repo.ClearErrors()
	_, err = repo.FindPagesByDatabase(context.Background(), "db1")
	require.NoError(t, err)
}

func TestRepository_ReturnsCopies(t *testing.T) {
	repo := New()
	ctx := context.Background()
	repotest.Seed(t, repo, "u1", "db1", "p1")

	pages, err := repo.FindPagesByDatabase(ctx, "db1")
	require.NoError(t, err)
	pages[0].Properties[0].Value = "mutated"

	again, err := repo.FindPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Open", again.Properties[0].Value)
}
