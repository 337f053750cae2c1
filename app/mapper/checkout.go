package mapper

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

func PackageToResponse(pkg catalog.Package) *types.PackageInfo {
	return &types.PackageInfo{
		Amount:      pkg.Amount().InexactFloat64(),
		AmountCents: pkg.AmountCents,
		Currency:    pkg.Currency,
		Name:        pkg.Name,
		Description: pkg.Description,
	}
}

func CatalogToResponse(c *catalog.Catalog) *types.ListPackagesResponse {
	packages := c.Packages()
	items := make(map[string]*types.PackageInfo, len(packages))
	for _, pkg := range packages {
		items[pkg.ID] = PackageToResponse(pkg)
	}

	return &types.ListPackagesResponse{
		Packages: items,
		Currency: c.Currency(),
	}
}

func CheckoutSessionToResponse(item *entity.PaymentTransaction, pkg catalog.Package) *types.CreateCheckoutSessionResponse {
	if item == nil {
		return nil
	}

	return &types.CreateCheckoutSessionResponse{
		Url:       item.CheckoutURL,
		SessionId: item.SessionID,
		Amount:    centsToAmount(item.AmountCents),
		Package:   pkg.Name,
	}
}

// CheckoutStatusToResponse reports the gateway's view of the session next to
// the stored transaction state. Unknown packages render as an empty object.
func CheckoutStatusToResponse(
	item *entity.PaymentTransaction,
	gateway *provider.SessionStatus,
	pkg catalog.Package,
	hasPackage bool,
) *types.CheckoutStatusResponse {
	if item == nil || gateway == nil {
		return nil
	}

	packageInfo := &types.PackageInfo{}
	if hasPackage {
		packageInfo = PackageToResponse(pkg)
	}

	return &types.CheckoutStatusResponse{
		SessionId:         item.SessionID,
		Status:            gateway.RawStatus,
		PaymentStatus:     gateway.RawPaymentStatus,
		AmountTotal:       centsToAmount(gateway.AmountTotal),
		Currency:          gateway.Currency,
		Metadata:          cloneMetadata(gateway.Metadata),
		PackageInfo:       packageInfo,
		TransactionStatus: string(item.PaymentStatus),
	}
}

func TransactionToNotification(item *entity.PaymentTransaction) *types.PaymentNotification {
	if item == nil {
		return nil
	}

	completedAt := ""
	if item.CompletedAt != nil {
		completedAt = item.CompletedAt.UTC().Format(time.RFC3339)
	}

	return &types.PaymentNotification{
		SessionId:     item.SessionID,
		PackageId:     item.PackageID,
		AmountCents:   item.AmountCents,
		Currency:      item.Currency,
		UserId:        derefString(item.UserID),
		UserEmail:     derefString(item.UserEmail),
		PaymentStatus: string(item.PaymentStatus),
		Metadata:      cloneMetadata(item.Metadata),
		CompletedAt:   completedAt,
	}
}

func centsToAmount(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func cloneMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
