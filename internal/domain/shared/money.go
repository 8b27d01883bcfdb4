package shared

// Money amounts are int64 values in the currency's minor unit. All fee
// arithmetic stays in integers; no float enters a money path.

// BpsDenominator is the denominator for basis-point fee rates (500 = 5%).
const BpsDenominator = 10000

// SplitFee splits a release amount into the seller portion and the platform
// fee. The fee is amount*feeBps/10000 rounded half-to-even to a whole minor
// unit; the rounding remainder is absorbed by the fee so that
// sellerAmount+platformFee always equals amount exactly.
func SplitFee(amount, feeBps int64) (sellerAmount, platformFee int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if feeBps < 0 || feeBps > BpsDenominator {
		return 0, 0, ErrInvalidFeeRate
	}

	n := amount * feeBps
	fee := n / BpsDenominator
	rem := n % BpsDenominator

	// Round half to even on the fractional minor unit.
	switch {
	case rem*2 > BpsDenominator:
		fee++
	case rem*2 == BpsDenominator && fee%2 == 1:
		fee++
	}

	return amount - fee, fee, nil
}
