package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateRFQNumber(t *testing.T) {
	moment := time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "RFQ007_082026", GenerateRFQNumber(7, moment))
	require.Equal(t, "RFQ1234_082026", GenerateRFQNumber(1234, moment))
	require.Equal(t, "RFQ001_012027", GenerateRFQNumber(1, time.Date(2027, time.January, 2, 0, 0, 0, 0, time.UTC)))
}

func TestNextSupplierSerial(t *testing.T) {
	require.Equal(t, 2, nextSupplierSerial("SUP-20260830-0001"))
	require.Equal(t, 43, nextSupplierSerial("SUP-20260830-0042"))
	// Повреждённый номер не должен ломать выдачу
	require.Equal(t, 1, nextSupplierSerial("SUP-garbage"))
}
