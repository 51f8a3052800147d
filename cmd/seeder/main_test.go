package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-messaging/internal/repository"
)

func TestReadClients(t *testing.T) {
	in := "opt_in,phone\ntrue,+15550001\n false , +15550002\n1,+15550003\n"

	clients, err := readClients(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, clients, 3)
	assert.Equal(t, "+15550001", clients[0].Phone)
	assert.True(t, clients[0].OptIn)
	assert.Equal(t, "+15550002", clients[1].Phone)
	assert.False(t, clients[1].OptIn)
	assert.True(t, clients[2].OptIn)
}

func TestReadClientsErrors(t *testing.T) {
	tests := map[string]string{
		"missing column": "phone\n+15550001\n",
		"bad opt_in":     "phone,opt_in\n+15550001,maybe\n",
		"empty phone":    "phone,opt_in\n,true\n",
		"empty file":     "",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readClients(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestSeedUpserts(t *testing.T) {
	store := repository.NewMemoryStore().Store()
	ctx := context.Background()

	clients, err := readClients(strings.NewReader("phone,opt_in\n+15550001,true\n+15550001,false\n+15550002,true\n"))
	require.NoError(t, err)

	n, err := seed(ctx, store.Clients, clients)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	opted, err := store.Clients.ListOptedIn(ctx)
	require.NoError(t, err)
	require.Len(t, opted, 1)
	assert.Equal(t, "+15550002", opted[0].Phone)
}
