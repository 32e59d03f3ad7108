package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/chat-relay/internal/utils"
)

func TestMapErr(t *testing.T) {
	req := require.New(t)

	req.NoError(mapErr(nil))
	req.ErrorIs(mapErr(mongo.ErrNoDocuments), utils.ErrNotFound)
	req.ErrorIs(mapErr(fmt.Errorf("find: %w", mongo.ErrNoDocuments)), utils.ErrNotFound)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	req.ErrorIs(mapErr(dup), utils.ErrConflict)

	other := errors.New("socket closed")
	req.Equal(other, mapErr(other))
}
