package settlement

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/example/station-engine/internal/domain"
)

const fieldSep = "\x1f"

// Seal fingerprints the priced content of b into b.Digest. Times enter the
// digest at millisecond precision so that a stored bill still verifies.
func Seal(b *domain.Bill) {
	b.Digest = Digest(*b)
}

// Verify reports whether b still matches its digest.
func Verify(b domain.Bill) bool {
	return b.Digest != "" && b.Digest == Digest(b)
}

// Digest returns the hex BLAKE2b-256 of the bill's canonical fields.
func Digest(b domain.Bill) string {
	var sb strings.Builder
	write := func(parts ...string) {
		for _, p := range parts {
			sb.WriteString(p)
			sb.WriteString(fieldSep)
		}
	}

	write(b.ID, string(b.Kind), b.StationID, b.StationName, b.PackageName, b.CycleTag,
		strconv.FormatInt(b.CreatedAt.UnixMilli(), 10))
	for _, m := range b.Members {
		write(m.ID, m.Name, strconv.FormatBool(m.IsGuest), strconv.FormatInt(m.Played.Milliseconds(), 10))
	}
	for _, l := range b.Items {
		write(l.ID, l.Name, string(l.EffectiveKind()), l.UnitPrice.String(), strconv.Itoa(l.Quantity))
	}
	write(b.InitialPackagePrice.String(), b.FoodSubtotal.String(), b.TimeSubtotal.String(),
		b.Discount.String(), b.Total.String())
	write(string(b.PaymentMethod), b.CashAmount.String(), b.UPIAmount.String(), b.PaidNow.String())
	if b.Debt != nil {
		write(string(b.Debt.Kind), b.Debt.Amount.String(), b.Debt.PartyID, b.Debt.PartyName)
	}

	sum := blake2b.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
