package api

import (
	"bytes"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/query"
)

type accountRequest struct {
	AccountID     string `json:"account_id"`
	Currency      string `json:"currency"`
	AllowNegative bool   `json:"allow_negative"`
}

type accountResponse struct {
	models.Account
	State        models.AccountState `json:"state"`
	HeadSequence int64               `json:"head_sequence_number"`
	Flagged      bool                `json:"flagged"`
}

type eventRequest struct {
	EventID               string           `json:"event_id"`
	AccountID             string           `json:"account_id"`
	Kind                  models.EventKind `json:"kind"`
	Amount                decimal.Decimal  `json:"amount"`
	CounterpartyAccountID string           `json:"counterparty_account_id"`
	ExpectedSequence      *int64           `json:"expected_sequence"`
}

func badBody(err error) error {
	return &ledger.ValidationError{Field: "body", Reason: err.Error()}
}

func (s *Server) createAccount(c *fiber.Ctx) error {
	var req accountRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	account, created, err := s.engine.RegisterAccount(c.UserContext(), models.Account{
		ID:            req.AccountID,
		Currency:      req.Currency,
		AllowNegative: req.AllowNegative,
	})
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(account)
}

func (s *Server) getAccount(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	account, err := s.engine.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	head, err := s.engine.Head(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(accountResponse{
		Account:      account,
		State:        models.StateAt(head),
		HeadSequence: head,
		Flagged:      s.engine.Flagged(id),
	})
}

func (s *Server) postEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}
	p := models.Posting{
		EventID:               req.EventID,
		AccountID:             req.AccountID,
		Kind:                  req.Kind,
		Amount:                req.Amount,
		CounterpartyAccountID: req.CounterpartyAccountID,
		ExpectedSequence:      req.ExpectedSequence,
	}

	ctx := c.UserContext()
	res, err := withRetry(ctx, s.retry, func() (ledger.Result, error) {
		return s.engine.Apply(ctx, p)
	})
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if res.Replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(res)
}

func (s *Server) getBalance(c *fiber.Ctx) error {
	id := c.Query("account_id")
	if id == "" {
		return &ledger.ValidationError{Field: "account_id", Reason: "is required"}
	}
	asOf, err := query.ParseAsOf(c.Query("as_of"), c.Query("as_of_sequence"))
	if err != nil {
		return err
	}
	balance, err := s.balances.GetBalance(c.UserContext(), id, asOf)
	if err != nil {
		return err
	}
	return c.JSON(balance)
}

func (s *Server) verify(c *fiber.Ctx) error {
	id := c.Query("account_id")
	if id == "" {
		return &ledger.ValidationError{Field: "account_id", Reason: "is required"}
	}
	report, err := s.engine.Verify(c.UserContext(), id)
	if err != nil && !errors.Is(err, ledger.ErrReconciliationMismatch) {
		return err
	}
	// A mismatch is a successful verification with a bad outcome.
	return c.JSON(report)
}

func (s *Server) flagged(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"accounts": s.engine.FlaggedAccounts()})
}

func (s *Server) clearFlag(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.engine.GetAccount(c.UserContext(), id); err != nil {
		return err
	}
	cleared, err := s.engine.ClearFlag(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"account_id": id, "cleared": cleared})
}

func (s *Server) listEvents(c *fiber.Ctx) error {
	from, err := seqParam(c, "from_seq", 1)
	if err != nil {
		return err
	}
	to, err := seqParam(c, "to_seq", 0)
	if err != nil {
		return err
	}
	evts, err := s.engine.History(c.UserContext(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"account_id": c.Params("id"), "events": evts})
}

func (s *Server) statement(c *fiber.Ctx) error {
	groupBy, err := ledger.ParseGroupBy(c.Query("group_by"))
	if err != nil {
		return err
	}
	to := s.now().UTC()
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return &ledger.ValidationError{Field: "to", Reason: "must be an RFC3339 time"}
		}
	}
	v := c.Query("from")
	if v == "" {
		return &ledger.ValidationError{Field: "from", Reason: "is required"}
	}
	from, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return &ledger.ValidationError{Field: "from", Reason: "must be an RFC3339 time"}
	}

	st, err := s.engine.Statement(c.UserContext(), c.Params("id"), from, to, groupBy)
	if err != nil {
		return err
	}

	switch c.Query("format", "json") {
	case "json":
		return c.JSON(st)
	case "csv":
		var buf bytes.Buffer
		if err := st.WriteCSV(&buf); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+st.AccountID+`-statement.csv"`)
		return c.Send(buf.Bytes())
	default:
		return &ledger.ValidationError{Field: "format", Reason: "must be json or csv"}
	}
}

func seqParam(c *fiber.Ctx, name string, def int64) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, &ledger.ValidationError{Field: name, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
