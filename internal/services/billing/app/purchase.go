package app

import (
	"context"
	"errors"
	"log"
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"github.com/zmooth/zmooth/internal/services/auth/user"
	billing "github.com/zmooth/zmooth/internal/services/billing/domain"
	"github.com/zmooth/zmooth/internal/services/integrations/mpesa"
	"github.com/zmooth/zmooth/internal/services/shared/events"
	"github.com/zmooth/zmooth/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// PurchaseInput buys a plan for the caller.
type PurchaseInput struct {
	PlanID        string `json:"plan_id"`
	PaymentMethod string `json:"payment_method"`
	PhoneNumber   string `json:"phone_number"`
}

// PurchaseResult is the outcome of a purchase. UserPlan is set when the plan
// was activated immediately; CheckoutRequestID when an STK push is pending.
type PurchaseResult struct {
	Transaction       billing.Transaction
	UserPlan          *billing.UserPlan
	CheckoutRequestID string
	CustomerMessage   string
}

// Purchase starts or completes a plan purchase depending on the method.
func (s *Service) Purchase(ctx context.Context, userID string, in PurchaseInput) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "billing.Purchase")
	defer span.End()

	method, err := billing.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return PurchaseResult{}, err
	}
	span.SetAttributes(attribute.String("payment.method", string(method)))
	switch method {
	case billing.MethodWallet, billing.MethodMpesa:
	case billing.MethodVoucher:
		return PurchaseResult{}, billing.ErrUseVoucherRedeem
	default:
		return PurchaseResult{}, billing.ErrInvalidPaymentMethod
	}

	plan, err := s.store.GetPlan(ctx, strings.TrimSpace(in.PlanID))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !plan.IsActive) {
		return PurchaseResult{}, billing.ErrPlanUnavailable
	}
	if err != nil {
		return PurchaseResult{}, err
	}
	customer, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return PurchaseResult{}, err
	}

	phone := strings.TrimSpace(in.PhoneNumber)
	if method == billing.MethodMpesa {
		if phone == "" {
			phone = customer.Phone
		}
		if phone == "" {
			return PurchaseResult{}, apperrors.Invalid("phone_number", "phone_number is required for M-Pesa payments")
		}
	}

	txn, err := s.newTransaction(customer.ID, billing.TransactionPurchase, method, plan.Price, plan.Currency)
	if err != nil {
		return PurchaseResult{}, err
	}
	txn.PlanID = plan.ID
	txn.Phone = phone
	if err := s.store.PutTransaction(ctx, txn); err != nil {
		return PurchaseResult{}, err
	}

	if method == billing.MethodWallet {
		return s.purchaseFromWallet(ctx, customer, plan, txn)
	}
	return s.startPush(ctx, txn, plan.Name)
}

func (s *Service) newTransaction(userID string, typ billing.TransactionType, method billing.PaymentMethod, amount money.Amount, currency string) (billing.Transaction, error) {
	txnID, err := s.newID("transaction")
	if err != nil {
		return billing.Transaction{}, err
	}
	now := s.now()
	ref, err := billing.NewTransactionRef(now)
	if err != nil {
		return billing.Transaction{}, err
	}
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return billing.Transaction{
		ID:        txnID,
		Ref:       ref,
		UserID:    userID,
		Type:      typ,
		Method:    method,
		Status:    billing.TransactionPending,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Service) purchaseFromWallet(ctx context.Context, customer user.User, plan billing.Plan, txn billing.Transaction) (PurchaseResult, error) {
	var activated billing.UserPlan
	err := s.store.InTx(ctx, func(tx storage.Store) error {
		if _, err := tx.AdjustWallet(ctx, customer.ID, -plan.Price, s.now()); err != nil {
			return err
		}
		txn = txn.Complete("", s.now())
		if err := tx.PutTransaction(ctx, txn); err != nil {
			return err
		}
		up, err := s.activate(ctx, tx, plan, customer.ID, txn.ID)
		activated = up
		return err
	})
	if err != nil {
		if errors.Is(err, billing.ErrInsufficientBalance) {
			failed := txn.Fail(billing.ErrInsufficientBalance.Message, s.now())
			if putErr := s.store.PutTransaction(ctx, failed); putErr != nil {
				log.Printf("fail transaction %s: %v", txn.Ref, putErr)
			}
		}
		return PurchaseResult{}, err
	}
	s.provisionCustomer(ctx, customer, plan)
	s.publish(events.PaymentCompleted, paymentEvent(txn))
	return PurchaseResult{Transaction: txn, UserPlan: &activated}, nil
}

func (s *Service) activate(ctx context.Context, tx storage.Store, plan billing.Plan, userID, transactionID string) (billing.UserPlan, error) {
	up, err := billing.Activate(plan, userID, transactionID, s.now())
	if err != nil {
		return billing.UserPlan{}, err
	}
	if err := tx.PutUserPlan(ctx, up); err != nil {
		return billing.UserPlan{}, err
	}
	return up, nil
}

// startPush sends an STK push for a pending transaction.
func (s *Service) startPush(ctx context.Context, txn billing.Transaction, description string) (PurchaseResult, error) {
	pushed, err := s.payments.STKPush(ctx, mpesa.PushRequest{
		Phone:            txn.Phone,
		Amount:           txn.Amount,
		AccountReference: txn.Ref,
		Description:      description,
	})
	if err != nil {
		reason := "Payment initiation failed"
		if domainErr, ok := apperrors.As(err); ok {
			reason = domainErr.Message
		}
		failed := txn.Fail(reason, s.now())
		if putErr := s.store.PutTransaction(ctx, failed); putErr != nil {
			log.Printf("fail transaction %s: %v", txn.Ref, putErr)
		}
		if _, ok := apperrors.As(err); ok {
			return PurchaseResult{}, err
		}
		return PurchaseResult{}, apperrors.Wrap(apperrors.CodePaymentFailed, reason, err)
	}
	txn.ProviderRef = pushed.CheckoutRequestID
	txn.UpdatedAt = s.now()
	if err := s.store.PutTransaction(ctx, txn); err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{
		Transaction:       txn,
		CheckoutRequestID: pushed.CheckoutRequestID,
		CustomerMessage:   pushed.CustomerMessage,
	}, nil
}

// HandleMpesaCallback settles the transaction named by a Daraja callback.
// Unknown and already settled transactions are acknowledged and ignored.
func (s *Service) HandleMpesaCallback(ctx context.Context, payload []byte) error {
	ctx, span := tracer.Start(ctx, "billing.HandleMpesaCallback")
	defer span.End()

	cb, err := mpesa.ParseCallback(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid callback payload", err)
	}
	txn, err := s.store.GetTransactionByProviderRef(ctx, cb.CheckoutRequestID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("mpesa callback for unknown checkout %s", cb.CheckoutRequestID)
		return nil
	}
	if err != nil {
		return err
	}
	if !txn.Pending() {
		return nil
	}
	if !cb.Succeeded() {
		return s.store.PutTransaction(ctx, txn.Fail(cb.ResultDesc, s.now()))
	}
	_, err = s.settle(ctx, txn, cb.Receipt)
	return err
}

// settle completes a pending transaction and applies its effect: activate a
// plan, credit a wallet or pay an invoice.
func (s *Service) settle(ctx context.Context, txn billing.Transaction, receipt string) (billing.Transaction, error) {
	var (
		plan      billing.Plan
		activated bool
		changed   bool
	)
	err := s.store.InTx(ctx, func(tx storage.Store) error {
		current, err := tx.GetTransaction(ctx, txn.ID)
		if err != nil {
			return err
		}
		if !current.Pending() {
			txn = current
			return nil
		}
		txn = current.Complete(receipt, s.now())
		if err := tx.PutTransaction(ctx, txn); err != nil {
			return err
		}
		changed = true
		switch txn.Type {
		case billing.TransactionTopUp:
			_, err = tx.AdjustWallet(ctx, txn.UserID, txn.Amount, s.now())
			return err
		case billing.TransactionInvoice:
			inv, err := tx.GetInvoice(ctx, txn.InvoiceID)
			if err != nil {
				return err
			}
			if inv.Settled() {
				return nil
			}
			paid, err := inv.MarkPaid(txn.Method, s.now())
			if err != nil {
				return err
			}
			return tx.PutInvoice(ctx, paid)
		default:
			if plan, err = tx.GetPlan(ctx, txn.PlanID); err != nil {
				return err
			}
			if _, err := s.activate(ctx, tx, plan, txn.UserID, txn.ID); err != nil {
				return err
			}
			activated = true
			return nil
		}
	})
	if err != nil {
		return billing.Transaction{}, err
	}
	if activated {
		if customer, err := s.store.GetUser(ctx, txn.UserID); err == nil {
			s.provisionCustomer(ctx, customer, plan)
		} else {
			log.Printf("load customer %s for provisioning: %v", txn.UserID, err)
		}
	}
	if changed {
		s.publish(events.PaymentCompleted, paymentEvent(txn))
	}
	return txn, nil
}

// MyPlans lists the caller's active plans, newest first.
func (s *Service) MyPlans(ctx context.Context, userID string) ([]billing.UserPlan, error) {
	return s.store.ListActiveUserPlans(ctx, userID)
}

type paymentPayload struct {
	TransactionID string       `json:"transaction_id"`
	Ref           string       `json:"ref"`
	UserID        string       `json:"user_id"`
	Type          string       `json:"type"`
	Method        string       `json:"method"`
	Amount        money.Amount `json:"amount"`
}

func paymentEvent(txn billing.Transaction) paymentPayload {
	return paymentPayload{
		TransactionID: txn.ID,
		Ref:           txn.Ref,
		UserID:        txn.UserID,
		Type:          string(txn.Type),
		Method:        string(txn.Method),
		Amount:        txn.Amount,
	}
}
