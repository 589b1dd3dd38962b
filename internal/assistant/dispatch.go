package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abgdnv/shopassist/internal/batch"
	"github.com/abgdnv/shopassist/internal/catalog"
	apperrors "github.com/abgdnv/shopassist/internal/errors"
	"github.com/abgdnv/shopassist/internal/mail"
	"github.com/abgdnv/shopassist/internal/pricing"
	"github.com/abgdnv/shopassist/internal/ratelimit"
	"github.com/abgdnv/shopassist/pkg/messaging/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const noFileMessage = "No file was attached to the request"

type statusResult struct {
	Status  catalog.Status `json:"status"`
	Message string         `json:"message"`
}

func errorResult(message string) statusResult {
	return statusResult{Status: catalog.StatusError, Message: message}
}

type emailResult struct {
	Status  catalog.Status `json:"status"`
	Details any            `json:"details"`
}

// scheduleResult acknowledges enqueued jobs.
type scheduleResult struct {
	Status   catalog.Status `json:"status"`
	Message  string         `json:"message"`
	BatchID  string         `json:"batch_id"`
	ApplyAt  *time.Time     `json:"apply_at,omitempty"`
	RevertAt *time.Time     `json:"revert_at,omitempty"`
}

func failed(result any) bool {
	switch r := result.(type) {
	case statusResult:
		return r.Status == catalog.StatusError
	case emailResult:
		return r.Status == catalog.StatusError
	case scheduleResult:
		return r.Status == catalog.StatusError
	case *catalog.Result:
		return !r.OK()
	case *batch.Result:
		return r.Status == catalog.StatusError
	default:
		return false
	}
}

func newBatchID() string {
	return uuid.NewString()
}

func (a *Assistant) dispatch(ctx context.Context, kind ToolKind, raw string, req Request) any {
	switch kind {
	case ToolSendEmail:
		var args sendEmailArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return emailResult{Status: catalog.StatusError, Details: msg}
		}
		return a.sendEmail(ctx, args, req)

	case ToolGetProductInfo:
		var args skuArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		info, err := ratelimit.Do(ctx, a.deps.Executor, func(ctx context.Context) (*catalog.ProductRecord, error) {
			return a.deps.Catalog.GetFullInfo(ctx, args.SKU)
		})
		if errors.Is(err, apperrors.ErrNotFound) {
			return errorResult(fmt.Sprintf("Could not find product with SKU '%s'", args.SKU))
		}
		if err != nil {
			return errorResult(err.Error())
		}
		return info

	case ToolUpdateProduct:
		var args productArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		return a.mutate(ctx, func(ctx context.Context) (*catalog.Result, error) {
			return a.deps.Catalog.Update(ctx, args.SKU, args.ProductFields)
		})

	case ToolCreateProduct:
		var args productArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		return a.mutate(ctx, func(ctx context.Context) (*catalog.Result, error) {
			return a.deps.Catalog.Create(ctx, args.SKU, args.ProductFields)
		})

	case ToolPutOnSale:
		var args putOnSaleArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		return a.mutate(ctx, func(ctx context.Context) (*catalog.Result, error) {
			return a.deps.Catalog.PutOnSale(ctx, args.SKU, args.SalePrice, args.RegularPrice, args.Tags)
		})

	case ToolTakeOffSale:
		var args takeOffSaleArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		return a.mutate(ctx, func(ctx context.Context) (*catalog.Result, error) {
			return a.deps.Catalog.TakeOffSale(ctx, args.SKU, args.Tags)
		})

	case ToolDisableProduct:
		var args skuArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		return a.mutate(ctx, func(ctx context.Context) (*catalog.Result, error) {
			return a.deps.Catalog.Disable(ctx, args.SKU)
		})

	case ToolCreateProductsFromCSV:
		if req.Attachment == nil {
			return errorResult(noFileMessage)
		}
		res, err := a.deps.Batches.CreateFile(ctx, req.Attachment.Name, req.Attachment.Content)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to process %s: %v", req.Attachment.Name, err))
		}
		return res

	case ToolUpdateProductsFromCSV:
		var args updateFromCSVArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		if req.Attachment == nil {
			return errorResult(noFileMessage)
		}
		return a.scheduleUpdate(ctx, args, req)

	case ToolRevertBatch:
		var args revertBatchArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		return a.scheduleRevert(ctx, args, req)

	case ToolQuotePrice:
		var args quotePriceArgs
		if msg, ok := a.decode(raw, &args); !ok {
			return errorResult(msg)
		}
		quote, err := pricing.NewQuote(args.Retail, args.Code)
		if err != nil {
			return errorResult(err.Error())
		}
		return quote

	default:
		return errorResult(fmt.Sprintf("Unsupported tool %s", kind))
	}
}

// decode parses and validates tool arguments. An empty argument string is an empty object.
func (a *Assistant) decode(raw string, into any) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Sprintf("Invalid tool arguments: %v", err), false
	}
	if err := a.validate.Struct(into); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, fieldErr := range validationErrors {
				msgs = append(msgs, fieldErr.Field()+" failed on rule: "+fieldErr.Tag())
			}
			sort.Strings(msgs)
			return "Invalid tool arguments: " + strings.Join(msgs, "; "), false
		}
		return fmt.Sprintf("Invalid tool arguments: %v", err), false
	}
	return "", true
}

func (a *Assistant) mutate(ctx context.Context, op func(ctx context.Context) (*catalog.Result, error)) any {
	res, err := ratelimit.Do(ctx, a.deps.Executor, op)
	if err != nil {
		return errorResult(err.Error())
	}
	return res
}

func (a *Assistant) sendEmail(ctx context.Context, args sendEmailArgs, req Request) any {
	email := mail.Email{
		To:      mail.ParseRecipients(args.Recipient),
		Subject: args.Subject,
		Text:    args.Body,
	}
	if req.Attachment != nil {
		email.Attachments = []mail.Attachment{{Name: req.Attachment.Name, Content: req.Attachment.Content}}
	}
	if err := a.validate.Struct(email); err != nil {
		return emailResult{Status: catalog.StatusError, Details: fmt.Sprintf("Invalid recipient %q", args.Recipient)}
	}
	delivery, err := a.deps.Mailer.Send(ctx, email)
	if err != nil {
		return emailResult{Status: catalog.StatusError, Details: err.Error()}
	}
	return emailResult{Status: catalog.StatusSuccess, Details: delivery}
}

// pick returns the caller supplied time, then the model supplied one, then nil.
func pick(fromCaller, fromModel *time.Time) *time.Time {
	if fromCaller != nil {
		return fromCaller
	}
	return fromModel
}

func (a *Assistant) scheduleUpdate(ctx context.Context, args updateFromCSVArgs, req Request) any {
	batchID := a.newID()
	applyAt := pick(req.ApplyAt, args.ApplyAt)
	revertAt := pick(req.RevertAt, args.RevertAt)
	if applyAt == nil {
		now := a.now().UTC()
		applyAt = &now
	}

	err := a.deps.Scheduler.Schedule(ctx, events.BatchJob{
		Kind:        events.JobApply,
		BatchID:     batchID,
		FileName:    req.Attachment.Name,
		Content:     req.Attachment.Content,
		RunAt:       *applyAt,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to schedule batch %s: %v", batchID, err))
	}
	res := scheduleResult{
		Status:  catalog.StatusSuccess,
		Message: fmt.Sprintf("Updates from %s scheduled for %s.", req.Attachment.Name, applyAt.Format(time.RFC3339)),
		BatchID: batchID,
		ApplyAt: applyAt,
	}
	if revertAt == nil {
		return res
	}
	if !revertAt.After(*applyAt) {
		a.logger.WarnContext(ctx, "revert scheduled before apply", "batch_id", batchID, "apply_at", applyAt, "revert_at", revertAt)
	}
	err = a.deps.Scheduler.Schedule(ctx, events.BatchJob{
		Kind:        events.JobRevert,
		BatchID:     batchID,
		RunAt:       *revertAt,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		res.Status = catalog.StatusError
		res.Message += fmt.Sprintf(" Failed to schedule the revert: %v. Use revert_batch with batch id %s.", err, batchID)
		return res
	}
	res.RevertAt = revertAt
	res.Message += fmt.Sprintf(" Revert scheduled for %s.", revertAt.Format(time.RFC3339))
	return res
}

func (a *Assistant) scheduleRevert(ctx context.Context, args revertBatchArgs, req Request) any {
	revertAt := pick(req.RevertAt, args.RevertAt)
	if revertAt == nil {
		now := a.now().UTC()
		revertAt = &now
	}
	err := a.deps.Scheduler.Schedule(ctx, events.BatchJob{
		Kind:        events.JobRevert,
		BatchID:     args.BatchID,
		RunAt:       *revertAt,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to schedule the revert of batch %s: %v", args.BatchID, err))
	}
	return scheduleResult{
		Status:   catalog.StatusSuccess,
		Message:  fmt.Sprintf("Revert of batch %s scheduled for %s.", args.BatchID, revertAt.Format(time.RFC3339)),
		BatchID:  args.BatchID,
		RevertAt: revertAt,
	}
}
