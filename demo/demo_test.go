// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package demo_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlstore/demo"
)

func TestRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, demo.Run(context.Background(), &buf))
	assert.Equal(t, ""+
		"Saba is taller than Jim.\n"+
		"Kiri is taller than Jim.\n"+
		"Dave is taller than Jim.\n"+
		"Sophie is taller than Jim.\n"+
		"Cape Town (4710000 inhabitants) has people taller than Jim.\n"+
		"Berlin (3677472 inhabitants) has people taller than Jim.\n"+
		"Brasília (3039444 inhabitants) has people taller than Jim.\n"+
		"People from Berlin are 168.0 cm tall on average.\n", buf.String())
}
