package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/mocks"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	convs    *mocks.MockConversationRepository
	messages *mocks.MockMessageRepository
	groups   *mocks.MockGroupRepository
	fileRepo *mocks.MockFileRepository
	blobs    *mocks.MockBlobStore
	bridge   *mocks.MockMessageBroadcaster
	events   *mocks.MockConversationEvents

	files *FileService
	svc   *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		convs:    mocks.NewMockConversationRepository(ctrl),
		messages: mocks.NewMockMessageRepository(ctrl),
		groups:   mocks.NewMockGroupRepository(ctrl),
		fileRepo: mocks.NewMockFileRepository(ctrl),
		blobs:    mocks.NewMockBlobStore(ctrl),
		bridge:   mocks.NewMockMessageBroadcaster(ctrl),
		events:   mocks.NewMockConversationEvents(ctrl),
	}
	f.files = NewFileService(f.fileRepo, f.blobs, 1024*1024, 15*time.Minute, zap.NewNop())
	f.files.now = func() time.Time { return t0 }
	f.svc = NewConversationService(f.convs, f.messages, f.groups, f.files, f.bridge, f.events, zap.NewNop())
	f.svc.now = func() time.Time { return t0 }
	return f
}

// noAttachments makes every message lookup find no uploaded files.
func (f *fixture) noAttachments() {
	f.fileRepo.EXPECT().ListByMessage(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
