package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"clinic_chat_service/internal/chat/domain"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	stubLocalFiles(t, map[string][]byte{"/tmp/voice.m4a": []byte("voice bytes")})

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeChatScenario,
		Options: &godog.Options{
			Paths:  []string{"./features"}, // 指向 feature 檔相對路徑
			Format: "pretty",
			Output: os.Stdout, // 將結果輸出到終端
		},
	}

	// 若 suite.Run() != 0 表示測試失敗
	if suite.Run() != 0 {
		t.Fail()
	}
}

// fakeAudioDevice 錄音一律產生 /tmp/voice.m4a
type fakeAudioDevice struct{}

func (fakeAudioDevice) CheckPermission(context.Context) error { return nil }
func (fakeAudioDevice) StartCapture(context.Context) error { return nil }
func (fakeAudioDevice) StopCapture(context.Context) (string, error) { return "/tmp/voice.m4a", nil }
func (fakeAudioDevice) DiscardCapture(context.Context) error { return nil }

// chatScenario 每個 scenario 的狀態
type chatScenario struct {
	world     *chatWorld
	roomID    string
	patientID string
	doctorID  string
	recorders map[string]*RecordingController
	lastErr   error
}

// InitializeChatScenario 註冊 Gherkin 與 Step Definition 的對應
func InitializeChatScenario(s *godog.ScenarioContext) {
	sc := &chatScenario{
		world:     newChatWorld(),
		recorders: map[string]*RecordingController{},
	}

	s.Step(`^patient "([^"]*)" and doctor "([^"]*)" share a chat room$`, sc.shareRoom)
	s.Step(`^the room id is "([^"]*)"$`, sc.roomIDIs)
	s.Step(`^"([^"]*)" sends the text "([^"]*)"$`, sc.sendsText)
	s.Step(`^the room shows (\d+) messages?$`, sc.roomShows)
	s.Step(`^message "([^"]*)" from "([^"]*)" is read$`, sc.messageIsRead)
	s.Step(`^message "([^"]*)" from "([^"]*)" is not read$`, sc.messageIsNotRead)
	s.Step(`^"([^"]*)" marks the room as read$`, sc.marksRead)
	s.Step(`^"([^"]*)" edits the message "([^"]*)" to "([^"]*)"$`, sc.edits)
	s.Step(`^the last action is denied$`, sc.lastActionDenied)
	s.Step(`^"([^"]*)" records a voice note and moves to (-?\d+), (-?\d+) before releasing$`, sc.recordsAndReleases)
	s.Step(`^"([^"]*)" stops the recording$`, sc.stopsRecording)
	s.Step(`^the recorder is "([^"]*)"$`, sc.recorderIs)
}

func (sc *chatScenario) shareRoom(patientID, doctorID string) error {
	roomID, err := sc.world.rooms.EnsureRoom(context.Background(), patientID, doctorID)
	if err != nil {
		return err
	}
	sc.roomID, sc.patientID, sc.doctorID = roomID, patientID, doctorID
	return nil
}

func (sc *chatScenario) roomIDIs(expected string) error {
	if sc.roomID != expected {
		return fmt.Errorf("expected room id %s, but got %s", expected, sc.roomID)
	}
	return nil
}

func (sc *chatScenario) sendsText(senderID, content string) error {
	_, err := sc.world.messages.SendText(context.Background(), sc.roomID, senderID, content)
	return err
}

func (sc *chatScenario) list() ([]domain.Message, error) {
	return sc.world.store.Messages().ListOrdered(context.Background(), sc.roomID)
}

func (sc *chatScenario) roomShows(count int) error {
	msgs, err := sc.list()
	if err != nil {
		return err
	}
	if len(msgs) != count {
		return fmt.Errorf("expected %d messages, but got %d", count, len(msgs))
	}
	return nil
}

func (sc *chatScenario) find(content, senderID string) (domain.Message, error) {
	msgs, err := sc.list()
	if err != nil {
		return domain.Message{}, err
	}
	for _, m := range msgs {
		if text, ok := m.Text(); ok && text == content && m.SenderID == senderID {
			return m, nil
		}
	}
	return domain.Message{}, fmt.Errorf("no message %q from %s", content, senderID)
}

func (sc *chatScenario) messageIsRead(content, senderID string) error {
	m, err := sc.find(content, senderID)
	if err != nil {
		return err
	}
	if !m.IsRead {
		return fmt.Errorf("message %q is not read", content)
	}
	return nil
}

func (sc *chatScenario) messageIsNotRead(content, senderID string) error {
	m, err := sc.find(content, senderID)
	if err != nil {
		return err
	}
	if m.IsRead || m.Delivered {
		return fmt.Errorf("message %q already advanced", content)
	}
	return nil
}

func (sc *chatScenario) marksRead(selfID string) error {
	report := sc.world.lifecycle.MarkRead(context.Background(), sc.roomID, selfID)
	return report.Err
}

func (sc *chatScenario) edits(requesterID, original, content string) error {
	msgs, err := sc.list()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if text, _ := m.Text(); text == original {
			_, sc.lastErr = sc.world.lifecycle.Edit(context.Background(), sc.roomID, m.ID, requesterID, content)
			if sc.lastErr != nil && !errors.Is(sc.lastErr, domain.ErrPermissionDenied) {
				return sc.lastErr
			}
			return nil
		}
	}
	return fmt.Errorf("no message %q", original)
}

func (sc *chatScenario) lastActionDenied() error {
	if !errors.Is(sc.lastErr, domain.ErrPermissionDenied) {
		return fmt.Errorf("expected permission denied, but got %v", sc.lastErr)
	}
	return nil
}

func (sc *chatScenario) recorder(userID string) *RecordingController {
	rc, ok := sc.recorders[userID]
	if !ok {
		rc = NewRecordingController(fakeAudioDevice{}, sc.world.mic, sc.world.messages, sc.roomID, userID, DefaultRecordingThresholds)
		sc.recorders[userID] = rc
	}
	return rc
}

func (sc *chatScenario) recordsAndReleases(userID string, dx, dy int) error {
	rc := sc.recorder(userID)
	if err := rc.Press(context.Background()); err != nil {
		return err
	}
	rc.Move(float64(dx), float64(dy))
	_, err := rc.Release(context.Background())
	return err
}

func (sc *chatScenario) stopsRecording(userID string) error {
	return sc.recorder(userID).Stop(context.Background())
}

func (sc *chatScenario) recorderIs(state string) error {
	for _, rc := range sc.recorders {
		if rc.State().String() != state {
			return fmt.Errorf("expected recorder %s, but got %s", state, rc.State())
		}
	}
	return nil
}
