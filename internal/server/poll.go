package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// pollSlides holds the request open until a slide command is posted and
// answers it as plain text. An expired poll gets an empty 200.
//
//	@Summary	Slide command long poll
//	@Param		timeout	query	string	false	"Wait at most this long (Go duration or seconds); capped by slides.poll_timeout"
//	@Produce	plain
//	@Success	200	{string}	string
//	@Failure	400
//	@Router		/slides/poll [get]
func (s *Server) pollSlides(c echo.Context) error {
	timeout, err := s.pollWindow(c.QueryParam("timeout"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	reqCtx := c.Request().Context()
	ctx := reqCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(reqCtx, timeout)
		defer cancel()
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	cmd, err := s.slides.Wait(ctx)
	if err != nil {
		if reqCtx.Err() != nil {
			s.log.Debug("slide poll abandoned")
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return c.String(http.StatusOK, "")
		}
		return err
	}
	return c.String(http.StatusOK, cmd)
}

// pollWindow resolves the wait for one poll. A query value may only shorten
// the configured timeout.
func (s *Server) pollWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.pollTimeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		sec, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, errors.New("timeout must be a duration or a number of seconds")
		}
		d = time.Duration(sec) * time.Second
	}
	if d <= 0 {
		return 0, errors.New("timeout must be positive")
	}
	if s.pollTimeout > 0 && d > s.pollTimeout {
		d = s.pollTimeout
	}
	return d, nil
}
