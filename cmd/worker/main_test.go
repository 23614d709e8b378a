package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	odysseytesting "github.com/odyssey-erp/odyssey-stock/testing"
)

func TestMain(m *testing.M) {
	odysseytesting.TestMain(m)
}

func TestMainReturnsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
