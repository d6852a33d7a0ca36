package inventory

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ListedPriceConversion(t *testing.T) {
	tests := []struct {
		name     string
		price    FlexString
		expected string
	}{
		{name: "fractional", price: "2500000000000000000", expected: "2.5"},
		{name: "whole ether keeps one decimal", price: "1000000000000000000", expected: "1.0"},
		{name: "one wei", price: "1", expected: "0.000000000000000001"},
		{name: "zero", price: "0", expected: "0.0"},
		{name: "full precision", price: "123456789123456789123456789", expected: "123456789.123456789123456789"},
		{name: "large with trailing zeros", price: "100000000000000000000000", expected: "100000.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(RawNftRecord{
				ContractAddress: "0xC1",
				Identifier:      "1",
				Price:           tt.price,
			}, Listed)

			require.NotNil(t, rec.Price)
			assert.Equal(t, tt.expected, rec.Price.Decimal)
			assert.Equal(t, string(tt.price), rec.Price.MinorUnits.String())
			assert.Equal(t, NativeCurrency, rec.Price.Currency)
		})
	}
}

func TestNormalize_ListedKeepsCurrency(t *testing.T) {
	rec := Normalize(RawNftRecord{
		ContractAddress: "0xC1",
		Identifier:      "1",
		Price:           "5",
		Currency:        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	}, Listed)

	require.NotNil(t, rec.Price)
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", rec.Price.Currency)
}

func TestNormalize_ListedWithoutPrice(t *testing.T) {
	for _, price := range []FlexString{"", "not-a-number", "-5", "1.5"} {
		rec := Normalize(RawNftRecord{ContractAddress: "0xC1", Identifier: "1", Price: price}, Listed)
		assert.Equal(t, Listed, rec.Membership, "price %q", price)
		assert.Nil(t, rec.Price, "price %q", price)
	}
}

func TestNormalize_OwnedStripsPrice(t *testing.T) {
	rec := Normalize(RawNftRecord{
		ContractAddress: "0xC2",
		Identifier:      "5",
		Price:           "1000000000000000000",
		Currency:        NativeCurrency,
	}, Owned)

	assert.Equal(t, Owned, rec.Membership)
	assert.Nil(t, rec.Price)
}

func TestNormalize_Placeholders(t *testing.T) {
	rec := Normalize(RawNftRecord{ContractAddress: "0xC1", Identifier: "1"}, Owned)
	assert.Equal(t, UnnamedPlaceholder, rec.Name)
	assert.Equal(t, NoDescriptionPlaceholder, rec.Description)

	rec = Normalize(RawNftRecord{
		ContractAddress: "0xC1",
		Identifier:      "1",
		Name:            "Punk #1",
		Description:     "a punk",
		ImageURL:        "https://example.com/1.png",
		OrderHash:       "0xabc",
	}, Owned)
	assert.Equal(t, "Punk #1", rec.Name)
	assert.Equal(t, "a punk", rec.Description)
	assert.Equal(t, "https://example.com/1.png", rec.ImageURL)
	assert.Equal(t, "0xabc", rec.OrderHash)
	assert.Equal(t, "owned-0xC1-1", rec.ID())
}

func TestToMinorUnits(t *testing.T) {
	v, err := ToMinorUnits("2.5")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(big.NewInt(2500000000000000000)))

	v, err = ToMinorUnits("1.0")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	_, err = ToMinorUnits("0.0000000000000000001")
	assert.Error(t, err)

	_, err = ToMinorUnits("abc")
	assert.Error(t, err)
}

func TestCurrencySymbol(t *testing.T) {
	assert.Equal(t, "ETH", CurrencySymbol(NativeCurrency))
	assert.Equal(t, "ETH", CurrencySymbol("0000000000000000000000000000000000000000"))
	assert.Equal(t, "N/A", CurrencySymbol("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
	assert.Equal(t, "N/A", CurrencySymbol("ETH"))
	assert.Equal(t, "N/A", CurrencySymbol(""))
}

func TestPriceJSONRoundTrip(t *testing.T) {
	rec := Normalize(RawNftRecord{ContractAddress: "0xC1", Identifier: "1", Price: "123456789123456789123456789"}, Listed)

	data, err := rec.Price.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"minor_units":"123456789123456789123456789"`)

	var p Price
	require.NoError(t, p.UnmarshalJSON(data))
	assert.Equal(t, rec.Price.Decimal, p.Decimal)
	assert.Equal(t, rec.Price.Currency, p.Currency)
	assert.Equal(t, 0, rec.Price.MinorUnits.Cmp(p.MinorUnits))
}
