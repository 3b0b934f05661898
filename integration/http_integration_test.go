package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"xray-go/internal/api"
	"xray-go/internal/config"
	"xray-go/internal/domain"
	"xray-go/internal/processor"
	"xray-go/internal/producer"
	memoryqueue "xray-go/internal/queue/memory"
	memorystor "xray-go/internal/store/memory"
)

// httpStack is the full memory-mode service: the HTTP API in front of
// the producer, queue, processor and stores. Requests go through the
// fiber app directly, no listener needed.
type httpStack struct {
	server  *api.Server
	queue   *memoryqueue.Queue
	signals *memorystor.SignalRepository
	cancel  context.CancelFunc
}

func startHTTPStack() *httpStack {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := &httpStack{
		queue:   memoryqueue.NewQueue(100),
		signals: memorystor.NewSignalRepository(),
	}
	devices := memorystor.NewDeviceStateStore()

	producerService := producer.NewService(s.queue, logger)
	proc := processor.NewService(s.queue, s.signals, devices, logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer GinkgoRecover()
		_ = proc.Start(ctx)
	}()

	s.server = api.NewServer(api.ServerDeps{
		Config: &config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  5 * time.Second,
		},
		Logger:          logger,
		SignalHandler:   api.NewSignalHandler(s.signals, logger),
		ProducerHandler: api.NewProducerHandler(producerService, logger),
		DeviceHandler:   api.NewDeviceHandler(devices, logger),
	})

	return s
}

func (s *httpStack) stop() {
	s.cancel()
	_ = s.queue.Close()
}

func (s *httpStack) do(method, path string, body interface{}) *http.Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.server.App().Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decodeData(resp *http.Response, data interface{}) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())

	envelope := &api.APIResponse{Data: data}
	Expect(json.Unmarshal(raw, envelope)).To(Succeed())
	Expect(envelope.Success).To(BeTrue(), "response: %s", raw)
}

var _ = Describe("HTTP API Integration", func() {
	var s *httpStack

	BeforeEach(func() {
		s = startHTTPStack()
	})

	AfterEach(func() {
		s.stop()
	})

	It("reports healthy", func() {
		resp := s.do(http.MethodGet, "/healthz", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var data map[string]string
		decodeData(resp, &data)
		Expect(data["status"]).To(Equal("healthy"))
	})

	It("ingests a triggered envelope and serves it back", func() {
		resp := s.do(http.MethodPost, "/producer/send-random/it-device", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var sent map[string]string
		decodeData(resp, &sent)
		Expect(sent["deviceId"]).To(Equal("it-device"))

		Eventually(func() int {
			signals, _ := s.signals.GetByDeviceID(context.Background(), "it-device")
			return len(signals)
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(1))

		resp = s.do(http.MethodGet, "/signals/device/it-device", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var signals []domain.Signal
		decodeData(resp, &signals)
		Expect(signals).To(HaveLen(1))
		Expect(signals[0].DeviceID).To(Equal("it-device"))
		Expect(signals[0].DataLength).To(Equal(len(signals[0].Data)))

		resp = s.do(http.MethodGet, "/devices/it-device", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("supports the full administrative lifecycle", func() {
		created := domain.Signal{}
		resp := s.do(http.MethodPost, "/signals", map[string]interface{}{
			"deviceId":   "admin-device",
			"timestamp":  1735683480000,
			"dataLength": 1,
			"dataVolume": 45,
			"data": []interface{}{
				map[string]interface{}{"time": 0, "coordinates": []float64{51.0, 12.0, 1.5}},
			},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		decodeData(resp, &created)
		Expect(created.ID).NotTo(BeEmpty())

		resp = s.do(http.MethodPatch, "/signals/"+created.ID, map[string]interface{}{
			"timestamp": 42,
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		updated := domain.Signal{}
		decodeData(resp, &updated)
		Expect(updated.Timestamp).To(Equal(int64(42)))

		resp = s.do(http.MethodDelete, "/signals/"+created.ID, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp = s.do(http.MethodGet, "/signals/"+created.ID, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})
