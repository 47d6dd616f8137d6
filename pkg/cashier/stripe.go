package cashier

import (
	"context"
	"errors"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

// StripeConfig holds configuration for the Stripe processor.
type StripeConfig struct {
	APIKey        string `env:"STRIPE_API_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// StripeProcessor implements Processor against the Stripe API. It also
// implements WebhookVerifier when a webhook secret is configured.
type StripeProcessor struct {
	api    *client.API
	config StripeConfig
}

// NewStripeProcessor creates a Stripe-backed processor.
func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cashier: stripe API key is required")
	}

	api := &client.API{}
	api.Init(cfg.APIKey, nil)

	return &StripeProcessor{
		api:    api,
		config: cfg,
	}, nil
}

// CreateCustomer registers the customer with the card behind the one-time
// token as the default source and returns the stored card summary.
func (p *StripeProcessor) CreateCustomer(ctx context.Context, email, name, paymentToken string) (*CustomerRef, error) {
	params := &stripe.CustomerParams{
		Email:  stripe.String(email),
		Name:   stripe.String(name),
		Source: stripe.String(paymentToken),
	}
	params.Context = ctx
	params.AddExpand("default_source")

	c, err := p.api.Customers.New(params)
	if err != nil {
		return nil, mapStripeErr(err)
	}

	ref := &CustomerRef{ID: c.ID}
	if c.DefaultSource != nil && c.DefaultSource.Card != nil {
		ref.CardBrand = string(c.DefaultSource.Card.Brand)
		ref.CardLastFour = c.DefaultSource.Card.Last4
	}
	return ref, nil
}

// CreateSubscription issues the remote create call. The trial end resolved
// by the builder is passed verbatim; when none was resolved the plan's
// remote default trial is suppressed so local and remote state agree.
func (p *StripeProcessor) CreateSubscription(ctx context.Context, customerRef, planID string, opts SubscriptionOptions) (*RemoteSubscription, error) {
	quantity := opts.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerRef),
		Items: []*stripe.SubscriptionItemsParams{{
			Plan:     stripe.String(planID),
			Quantity: stripe.Int64(quantity),
		}},
	}
	params.Context = ctx

	if opts.TrialEndsAt != nil {
		params.TrialEnd = stripe.Int64(opts.TrialEndsAt.Unix())
	} else {
		params.TrialFromPlan = stripe.Bool(false)
	}
	if opts.BillingCycleAnchor != nil {
		params.BillingCycleAnchor = stripe.Int64(opts.BillingCycleAnchor.Unix())
	}
	if opts.Coupon != "" {
		params.Coupon = stripe.String(opts.Coupon)
	}

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, mapStripeErr(err)
	}

	remote := &RemoteSubscription{ID: sub.ID}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		remote.TrialEndsAt = &t
	}
	return remote, nil
}

// CancelSubscription cancels remotely. Scheduled cancellation keeps the
// subscription billing-complete until the reported period end; immediate
// cancellation ends it now.
func (p *StripeProcessor) CancelSubscription(ctx context.Context, remoteID string, immediate bool) (time.Time, error) {
	if immediate {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		sub, err := p.api.Subscriptions.Cancel(remoteID, params)
		if err != nil {
			return time.Time{}, mapStripeErr(err)
		}
		if sub.CanceledAt > 0 {
			return time.Unix(sub.CanceledAt, 0).UTC(), nil
		}
		return time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Update(remoteID, params)
	if err != nil {
		return time.Time{}, mapStripeErr(err)
	}
	return time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
}

// ResumeSubscription clears the scheduled cancellation. Only valid while the
// period paid for has not elapsed; past that Stripe reports the subscription
// as canceled and the call is rejected.
func (p *StripeProcessor) ResumeSubscription(ctx context.Context, remoteID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Update(remoteID, params); err != nil {
		return mapStripeErr(err)
	}
	return nil
}

// SwapPlan replaces the subscription's single item with the new plan,
// prorating the remainder of the current period.
func (p *StripeProcessor) SwapPlan(ctx context.Context, remoteID, newPlanID string, quantity int64) error {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := p.api.Subscriptions.Get(remoteID, getParams)
	if err != nil {
		return mapStripeErr(err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return errors.Join(ErrProcessorRejected, errors.New("cashier: remote subscription has no items"))
	}

	if quantity <= 0 {
		quantity = 1
	}
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:       stripe.String(sub.Items.Data[0].ID),
			Plan:     stripe.String(newPlanID),
			Quantity: stripe.Int64(quantity),
		}},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Update(remoteID, params); err != nil {
		return mapStripeErr(err)
	}
	return nil
}

// RegisterPlan creates the pricing definition remotely. Stripe has no expiry
// count on plans; ExpiryCount stays a local-only attribute.
func (p *StripeProcessor) RegisterPlan(ctx context.Context, plan Plan) (string, error) {
	params := &stripe.PlanParams{
		ID:            stripe.String(plan.ID),
		Amount:        stripe.Int64(plan.Amount),
		Currency:      stripe.String(strings.ToLower(plan.Currency)),
		Interval:      stripe.String(string(plan.Interval)),
		IntervalCount: stripe.Int64(plan.IntervalCount),
		Product: &stripe.PlanProductParams{
			Name: stripe.String(plan.Name),
		},
	}
	params.Context = ctx
	if plan.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(plan.TrialDays))
	}

	created, err := p.api.Plans.New(params)
	if err != nil {
		return "", mapStripeErr(err)
	}
	return created.ID, nil
}

// ApplyCoupon attaches a discount to an existing customer.
func (p *StripeProcessor) ApplyCoupon(ctx context.Context, customerRef, code string) error {
	params := &stripe.CustomerParams{
		Coupon: stripe.String(code),
	}
	params.Context = ctx
	if _, err := p.api.Customers.Update(customerRef, params); err != nil {
		return mapStripeErr(err)
	}
	return nil
}

// CreateOneOffInvoice bills a single pending item and pays the invoice
// immediately.
func (p *StripeProcessor) CreateOneOffInvoice(ctx context.Context, customerRef, description string, amount int64, currency string) (*Invoice, error) {
	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(customerRef),
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String(description),
	}
	itemParams.Context = ctx
	if _, err := p.api.InvoiceItems.New(itemParams); err != nil {
		return nil, mapStripeErr(err)
	}

	invParams := &stripe.InvoiceParams{
		Customer: stripe.String(customerRef),
	}
	invParams.Context = ctx
	inv, err := p.api.Invoices.New(invParams)
	if err != nil {
		return nil, mapStripeErr(err)
	}

	payParams := &stripe.InvoicePayParams{}
	payParams.Context = ctx
	paid, err := p.api.Invoices.Pay(inv.ID, payParams)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return toInvoice(paid), nil
}

// Refund reverses a settled charge in full.
func (p *StripeProcessor) Refund(ctx context.Context, chargeRef string) (*Refund, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(chargeRef),
	}
	params.Context = ctx
	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return &Refund{
		ID:       r.ID,
		ChargeID: chargeRef,
		Amount:   r.Amount,
		Currency: strings.ToUpper(string(r.Currency)),
	}, nil
}

// FetchInvoices lists the customer's invoices, newest first.
func (p *StripeProcessor) FetchInvoices(ctx context.Context, customerRef string) ([]*Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerRef),
	}
	params.Context = ctx

	var invoices []*Invoice
	it := p.api.Invoices.List(params)
	for it.Next() {
		invoices = append(invoices, toInvoice(it.Invoice()))
	}
	if err := it.Err(); err != nil {
		return nil, mapStripeErr(err)
	}
	return invoices, nil
}

// VerifyWebhook checks the delivery signature. A processor without a
// configured secret accepts everything, which is only appropriate in tests.
func (p *StripeProcessor) VerifyWebhook(payload []byte, signature string) error {
	if p.config.WebhookSecret == "" {
		return nil
	}
	if _, err := webhook.ConstructEvent(payload, signature, p.config.WebhookSecret); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	return nil
}

// toInvoice projects a Stripe invoice onto the read model.
func toInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:       inv.ID,
		Amount:   inv.Total,
		Currency: strings.ToUpper(string(inv.Currency)),
		Date:     time.Unix(inv.Created, 0).UTC(),
	}
	if inv.Charge != nil {
		out.ChargeID = inv.Charge.ID
	}
	if inv.Lines == nil {
		return out
	}
	for _, line := range inv.Lines.Data {
		item := LineItem{
			Description: line.Description,
			Amount:      line.Amount,
			Currency:    strings.ToUpper(string(line.Currency)),
			Proration:   line.Proration,
		}
		if line.Period != nil {
			item.Period = Period{
				Start: time.Unix(line.Period.Start, 0).UTC(),
				End:   time.Unix(line.Period.End, 0).UTC(),
			}
		}
		out.Lines = append(out.Lines, item)
	}
	return out
}

// mapStripeErr translates Stripe failures into the package taxonomy.
// Declines and validation failures are terminal business outcomes; server
// errors, rate limits and raw network failures are transient and retried.
func mapStripeErr(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 {
			return errors.Join(ErrTransientNetwork, err)
		}
		return errors.Join(ErrProcessorRejected, err)
	}

	// Anything that never produced a Stripe response is a connectivity issue.
	return errors.Join(ErrTransientNetwork, err)
}
