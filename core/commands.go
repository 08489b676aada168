package core

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Session identifies who invoked a command and how replies should be rendered
type Session struct {
	UserID string
	Locale string
}

const (
	CommandView    = "cas"
	CommandBind    = "cas.bind"
	CommandLink    = "cas.link"
	CommandScore   = "cas.score"
	CommandCheckIn = "cas.checkin"
)

// Commands turns gateway results and errors into chat replies. No error
// escapes as anything other than text.
type Commands struct {
	gateway *Gateway
	catalog *Catalog
	logger  *zap.Logger
}

func NewCommands(gateway *Gateway, catalog *Catalog, logger *zap.Logger) *Commands {
	return &Commands{
		gateway: gateway,
		catalog: catalog,
		logger:  logger,
	}
}

// Dispatch routes one command line, e.g. "cas.score 100 alice".
func (c *Commands) Dispatch(ctx context.Context, s Session, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return c.catalog.Text(s.Locale, MsgHelp)
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case CommandView:
		return c.View(ctx, s)

	case CommandBind:
		return c.Bind(s)

	case CommandLink:
		if len(args) == 0 {
			return c.catalog.Text(s.Locale, MsgUsageLink)
		}
		return c.Link(ctx, s, strings.Join(args, " "))

	case CommandScore:
		if len(args) == 0 || len(args) > 2 {
			return c.catalog.Text(s.Locale, MsgUsageScore)
		}
		score, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.catalog.Text(s.Locale, MsgInvalidScore, args[0])
		}
		target := ""
		if len(args) == 2 {
			target = args[1]
		}
		return c.Score(ctx, s, score, target)

	case CommandCheckIn:
		return c.CheckIn(ctx, s)

	default:
		return c.catalog.Text(s.Locale, MsgHelp)
	}
}

func (c *Commands) View(ctx context.Context, s Session) string {
	record, err := c.gateway.ViewBinding(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, ErrNotBound) {
			return c.catalog.Text(s.Locale, MsgNotBound)
		}
		return c.internalError(s, "view binding", err)
	}
	return c.catalog.Text(s.Locale, MsgBindInfo, record.ExternalUsername, c.catalog.Date(s.Locale, record.BoundAt))
}

func (c *Commands) Bind(s Session) string {
	return c.catalog.Text(s.Locale, MsgLogin, c.gateway.BindLink(s.UserID))
}

func (c *Commands) Link(ctx context.Context, s Session, link string) string {
	record, err := c.gateway.CompleteBind(ctx, s.UserID, link)
	return c.bindReply(s, record, err)
}

// Callback completes a bind from the OAuth redirect, where the code arrives
// directly rather than inside a pasted link.
func (c *Commands) Callback(ctx context.Context, s Session, code string) string {
	if code == "" {
		return c.catalog.Text(s.Locale, MsgLinkInvalid)
	}
	record, err := c.gateway.BindWithCode(ctx, s.UserID, code)
	return c.bindReply(s, record, err)
}

func (c *Commands) bindReply(s Session, record *BindingRecord, err error) string {
	if err != nil {
		if errors.Is(err, ErrInvalidLink) {
			return c.catalog.Text(s.Locale, MsgLinkInvalid)
		}
		c.logger.Warn("bind failed", zap.String("chat_user_id", s.UserID), zap.Error(err))
		return c.catalog.Text(s.Locale, MsgBindError, err.Error())
	}
	return c.catalog.Text(s.Locale, MsgBindSuccess, record.ExternalUsername)
}

func (c *Commands) Score(ctx context.Context, s Session, score int64, target string) string {
	result, err := c.gateway.SetScore(ctx, s.UserID, score, target)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotBound):
			return c.catalog.Text(s.Locale, MsgScoreNotBound)
		case errors.Is(err, ErrInvalidTarget):
			return c.catalog.Text(s.Locale, MsgInvalidTarget)
		}
		return c.catalog.Text(s.Locale, MsgScoreError, err.Error())
	}
	return c.catalog.Text(s.Locale, MsgScoreSuccess, result.Target, result.Score)
}

func (c *Commands) CheckIn(ctx context.Context, s Session) string {
	result, err := c.gateway.CheckIn(ctx, s.UserID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotBound):
			return c.catalog.Text(s.Locale, MsgScoreNotBound)
		case errors.Is(err, ErrInvalidTarget):
			return c.catalog.Text(s.Locale, MsgCheckInNoAccount)
		}
		return c.catalog.Text(s.Locale, MsgCheckInError, err.Error())
	}
	return c.catalog.Text(s.Locale, MsgCheckInSuccess, result.Gained, result.Total)
}

func (c *Commands) internalError(s Session, op string, err error) string {
	c.logger.Error(op+" failed", zap.String("chat_user_id", s.UserID), zap.Error(err))
	return c.catalog.Text(s.Locale, MsgInternalError)
}
