package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var serverTracer = otel.Tracer("voiceforth/internal/server")

// conversation answers one webhook turn.
//
//	@Summary	Conversation webhook
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	AppResponse
//	@Failure	400
//	@Router		/webhook [post]
func (s *Server) conversation(c echo.Context) error {
	req := c.Request()
	ctx, span := serverTracer.Start(req.Context(), "Server.conversation")
	defer span.End()

	body, err := DecodeAppRequest(req.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed request")
		s.log.Warn("malformed conversation request", zap.Error(err), zap.String("remote", c.RealIP()))
		return c.NoContent(http.StatusBadRequest)
	}
	span.SetAttributes(attribute.String("conversation_id", body.Conversation.ConversationID))

	reply, err := s.conv.Handle(ctx, body.Turn(c.RealIP()))
	if err != nil {
		// The caller went away while the turn waited for the interpreter.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Debug("conversation turn abandoned", zap.Error(err))
		return nil
	}
	return c.JSON(http.StatusOK, NewAppResponse(reply))
}
