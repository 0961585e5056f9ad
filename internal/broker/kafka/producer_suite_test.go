package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/TrackIntake/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

type ProducerSuite struct {
	suite.Suite
	wm *writerMock
	p  *Producer
}

func (s *ProducerSuite) SetupTest() {
	s.wm = &writerMock{}
	s.p = newProducerWithWriter(s.wm)
}

func (s *ProducerSuite) event() messages.ExportCompleted {
	return messages.ExportCompleted{
		BatchID:           "0b9f6a3e-batch",
		Filename:          "202503040506_345_Trackingdaten_dvs.csv",
		DeliveryPartnerID: "345",
		Channel:           "upload",
		Station:           "4202",
		RecordCount:       2,
		Codes:             []string{"DVSC1", "DVSC2"},
		CompletedAt:       time.Date(2025, 3, 4, 5, 6, 0, 0, time.UTC),
	}
}

func (s *ProducerSuite) TestPublish_ExportCompletedKeyedByBatch() {
	ev := s.event()
	value, err := json.Marshal(ev)
	s.Require().NoError(err)

	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || msgs[0].Topic != messages.TopicExportCompleted || string(msgs[0].Key) != ev.BatchID {
				return false
			}
			var got messages.ExportCompleted
			if json.Unmarshal(msgs[0].Value, &got) != nil {
				return false
			}
			return got.Filename == ev.Filename && got.RecordCount == 2 && len(got.Codes) == 2
		})).
		Return(nil).
		Once()

	s.Require().NoError(s.p.Publish(context.Background(), messages.TopicExportCompleted, []byte(ev.BatchID), value))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublish_SnakeCasePayload() {
	value, err := json.Marshal(s.event())
	s.Require().NoError(err)

	var raw map[string]any
	s.Require().NoError(json.Unmarshal(value, &raw))
	for _, k := range []string{"batch_id", "delivery_partner_id", "record_count", "completed_at"} {
		s.Require().Contains(raw, k)
	}
}

func (s *ProducerSuite) TestPublish_ErrorWrapped() {
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available")).Once()

	err := s.p.Publish(context.Background(), messages.TopicExportCompleted, []byte("b"), []byte("{}"))
	s.Require().Error(err)
	s.Require().Contains(err.Error(), "kafka publish")
	s.Require().Contains(err.Error(), "leader not available")
	s.wm.AssertExpectations(s.T())
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}
