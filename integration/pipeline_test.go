package integration

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"xray-go/internal/domain"
	"xray-go/internal/processor"
	"xray-go/internal/producer"
	"xray-go/internal/queue"
	memoryqueue "xray-go/internal/queue/memory"
	memorystor "xray-go/internal/store/memory"
	"xray-go/internal/xray"
)

// pipeline wires a producer, an in-memory queue and a processor the way
// the binary does in memory mode, so the full publish-to-persist path
// runs in process.
type pipeline struct {
	queue    *memoryqueue.Queue
	signals  *memorystor.SignalRepository
	devices  *memorystor.DeviceStateStore
	producer *producer.Service
	cancel   context.CancelFunc
}

func startPipeline() *pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := &pipeline{
		queue:   memoryqueue.NewQueue(100),
		signals: memorystor.NewSignalRepository(),
		devices: memorystor.NewDeviceStateStore(),
	}
	p.producer = producer.NewService(p.queue, logger)

	proc := processor.NewService(p.queue, p.signals, p.devices, logger)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		defer GinkgoRecover()
		_ = proc.Start(ctx)
	}()

	return p
}

func (p *pipeline) stop() {
	p.cancel()
	_ = p.queue.Close()
}

var _ = Describe("Ingestion Pipeline", func() {
	var p *pipeline

	BeforeEach(func() {
		p = startPipeline()
	})

	AfterEach(func() {
		p.stop()
	})

	It("persists the fixed sample envelope end to end", func() {
		Expect(p.producer.SendSample(context.Background())).To(Succeed())

		Eventually(func() int {
			signals, _ := p.signals.GetByDeviceID(context.Background(), "66bb584d4ae73e488c30a072")
			return len(signals)
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(1))

		signals, err := p.signals.GetByDeviceID(context.Background(), "66bb584d4ae73e488c30a072")
		Expect(err).NotTo(HaveOccurred())

		signal := signals[0]
		Expect(signal.Timestamp).To(Equal(int64(1735683480000)))
		Expect(signal.DataLength).To(Equal(3))
		Expect(signal.Data).To(HaveLen(3))
		Expect(signal.DataVolume).To(BeNumerically(">", 0))
	})

	It("persists randomized envelopes for many devices", func() {
		ids := make([]string, 0, 5)
		for i := 0; i < 5; i++ {
			id, err := p.producer.SendRandom(context.Background(), "")
			Expect(err).NotTo(HaveOccurred())
			ids = append(ids, id)
		}

		Eventually(func() int {
			all, _ := p.signals.List(context.Background(), domain.SignalFilter{})
			return len(all)
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(5))

		for _, id := range ids {
			signals, err := p.signals.GetByDeviceID(context.Background(), id)
			Expect(err).NotTo(HaveOccurred())
			Expect(signals).To(HaveLen(1))
			Expect(signals[0].DataLength).To(And(
				BeNumerically(">=", 5),
				BeNumerically("<=", 14),
			))
		}
	})

	It("tracks per-device ingestion state", func() {
		_, err := p.producer.SendRandom(context.Background(), "dev-state")
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int64 {
			state, _ := p.devices.Get(context.Background(), "dev-state")
			if state == nil {
				return 0
			}
			return state.SignalCount
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(1)))

		state, err := p.devices.Get(context.Background(), "dev-state")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.LastSeen).NotTo(BeZero())
	})

	It("rejects malformed bytes without touching storage", func() {
		err := p.queue.Publish(context.Background(), &queue.Message{Value: []byte("{broken")})
		Expect(err).NotTo(HaveOccurred())

		Eventually(p.queue.Rejected, 2*time.Second, 10*time.Millisecond).Should(Equal(1))

		all, err := p.signals.List(context.Background(), domain.SignalFilter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(BeEmpty())
	})

	It("persists a redelivered envelope exactly once", func() {
		env := &xray.Envelope{
			DeviceID:   "dev-redelivery",
			CapturedAt: 1735683480000,
			Samples: []xray.Sample{
				{OffsetMillis: 0, Position: [3]float64{51.0, 12.0, 1.0}},
			},
		}
		data, err := xray.Encode(env)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 2; i++ {
			Expect(p.queue.Publish(context.Background(), &queue.Message{Value: data})).To(Succeed())
		}

		Eventually(p.queue.Rejected, 2*time.Second, 10*time.Millisecond).Should(Equal(1))

		signals, err := p.signals.GetByDeviceID(context.Background(), "dev-redelivery")
		Expect(err).NotTo(HaveOccurred())
		Expect(signals).To(HaveLen(1))
	})
})
