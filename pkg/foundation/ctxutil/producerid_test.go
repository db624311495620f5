package ctxutil

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
)

func TestContextWithProducerID_Success(t *testing.T) {
	is := is.New(t)

	producerID := uuid.NewString()
	ctx := ContextWithProducerID(context.Background(), producerID)

	is.Equal(ProducerIDFromContext(ctx), producerID)
}

func TestContextWithProducerID_Twice(t *testing.T) {
	is := is.New(t)

	producerID := uuid.NewString()
	ctx := ContextWithProducerID(context.Background(), "stale")
	ctx = ContextWithProducerID(ctx, producerID)

	is.Equal(ProducerIDFromContext(ctx), producerID)
}

func TestProducerIDFromContext_Empty(t *testing.T) {
	is := is.New(t)

	is.Equal(ProducerIDFromContext(context.Background()), "")
}

func TestProducerIDLogCtxHook_Success(t *testing.T) {
	is := is.New(t)

	producerID := uuid.NewString()
	ctx := ContextWithProducerID(context.Background(), producerID)

	var out bytes.Buffer
	logger := zerolog.New(&out)
	e := logger.Info()
	ProducerIDLogCtxHook{}.Run(ctx, e, zerolog.InfoLevel)
	e.Send()

	is.Equal(out.String(), fmt.Sprintf(`{"level":"info","%s":"%s"}`, log.ProducerIDField, producerID)+"\n")
}

func TestProducerIDLogCtxHook_EmptyCtx(t *testing.T) {
	is := is.New(t)

	var out bytes.Buffer
	logger := zerolog.New(&out)
	e := logger.Info()
	ProducerIDLogCtxHook{}.Run(context.Background(), e, zerolog.InfoLevel)
	e.Send()

	is.Equal(out.String(), `{"level":"info"}`+"\n")
}

func TestCtxLogger_CtxHookAttachesProducerID(t *testing.T) {
	is := is.New(t)

	producerID := uuid.NewString()
	ctx := ContextWithProducerID(context.Background(), producerID)

	var out bytes.Buffer
	logger := log.New(zerolog.New(&out)).CtxHook(ProducerIDLogCtxHook{})
	logger.Info(ctx).Msg("connected")

	is.Equal(out.String(), fmt.Sprintf(`{"level":"info","%s":"%s","message":"connected"}`, log.ProducerIDField, producerID)+"\n")
}
