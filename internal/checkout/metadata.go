package checkout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Gateway metadata keys. The webhook resolves the checkout from these alone.
const (
	MetaCheckoutID              = "checkout_id"
	MetaUserID                  = "user_id"
	MetaAddressID               = "address_id"
	MetaTempOrderIDs            = "temp_order_ids"
	MetaFinalTotal              = "final_total"
	MetaPointsToUse             = "points_to_use"
	MetaVoucherCode             = "voucher_code"
	MetaFreeShippingVoucherCode = "free_shipping_voucher_code"
)

// metadataValueLimit is Stripe's cap on a single metadata value.
const metadataValueLimit = 500

// SessionMetadata is the opaque state carried through the hosted checkout.
type SessionMetadata struct {
	CheckoutID              uuid.UUID
	UserID                  uuid.UUID
	AddressID               uuid.UUID
	TempOrderIDs            []uuid.UUID
	FinalTotal              int64
	PointsToUse             int64
	VoucherCode             string
	FreeShippingVoucherCode string
}

// Encode renders the metadata as gateway key/value pairs. Order ids that do
// not fit one value are dropped; the checkout id still resolves them.
func (m SessionMetadata) Encode() map[string]string {
	out := map[string]string{
		MetaCheckoutID:  m.CheckoutID.String(),
		MetaUserID:      m.UserID.String(),
		MetaAddressID:   m.AddressID.String(),
		MetaFinalTotal:  strconv.FormatInt(m.FinalTotal, 10),
		MetaPointsToUse: strconv.FormatInt(m.PointsToUse, 10),
	}
	ids := make([]string, 0, len(m.TempOrderIDs))
	for _, id := range m.TempOrderIDs {
		ids = append(ids, id.String())
	}
	if joined := strings.Join(ids, ","); joined != "" && len(joined) <= metadataValueLimit {
		out[MetaTempOrderIDs] = joined
	}
	if m.VoucherCode != "" {
		out[MetaVoucherCode] = m.VoucherCode
	}
	if m.FreeShippingVoucherCode != "" {
		out[MetaFreeShippingVoucherCode] = m.FreeShippingVoucherCode
	}
	return out
}

// ParseSessionMetadata reverses Encode.
func ParseSessionMetadata(md map[string]string) (SessionMetadata, error) {
	var m SessionMetadata
	var err error
	if m.CheckoutID, err = requiredUUID(md, MetaCheckoutID); err != nil {
		return m, err
	}
	if m.UserID, err = requiredUUID(md, MetaUserID); err != nil {
		return m, err
	}
	if raw := strings.TrimSpace(md[MetaAddressID]); raw != "" {
		if m.AddressID, err = uuid.Parse(raw); err != nil {
			return m, fmt.Errorf("metadata %s: %w", MetaAddressID, err)
		}
	}
	if raw := strings.TrimSpace(md[MetaTempOrderIDs]); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				return m, fmt.Errorf("metadata %s: %w", MetaTempOrderIDs, err)
			}
			m.TempOrderIDs = append(m.TempOrderIDs, id)
		}
	}
	if m.FinalTotal, err = optionalInt(md, MetaFinalTotal); err != nil {
		return m, err
	}
	if m.PointsToUse, err = optionalInt(md, MetaPointsToUse); err != nil {
		return m, err
	}
	m.VoucherCode = md[MetaVoucherCode]
	m.FreeShippingVoucherCode = md[MetaFreeShippingVoucherCode]
	return m, nil
}

func requiredUUID(md map[string]string, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(md[key])
	if raw == "" {
		return uuid.Nil, fmt.Errorf("metadata %s missing", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("metadata %s: %w", key, err)
	}
	return id, nil
}

func optionalInt(md map[string]string, key string) (int64, error) {
	raw := strings.TrimSpace(md[key])
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("metadata %s: %w", key, err)
	}
	return v, nil
}
