//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/access_mon/internal/api"
	"github.com/eliteGoblin/focusd/access_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/access_mon/internal/infra"
	"github.com/eliteGoblin/focusd/access_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/access_mon/internal/policy"
	"github.com/eliteGoblin/focusd/access_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/access_mon/test/fixtures"
)

const lockPassword = "lock-pass"

// harness runs the daemon wiring of cmd/accessmon against a real encrypted
// store and a fake actuator.
type harness struct {
	store    *infra.EncryptedStore
	actuator *fixtures.FakeActuator
	clock    *fixtures.ManualClock
	service  *usecase.Service
	server   *httptest.Server
	cancel   context.CancelFunc
	done     chan error
}

func startHarness(dataDir string, actuator *fixtures.FakeActuator, clock *fixtures.ManualClock) *harness {
	store, err := infra.OpenStore(dataDir)
	Expect(err).NotTo(HaveOccurred())

	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	service := usecase.NewService(
		store,
		actuator,
		clock,
		fixtures.StaticPasswords(lockPassword),
		usecase.DefaultServiceConfig(),
		logger,
	).WithRecorder(metrics.NewRecorder(reg))
	Expect(service.Load(context.Background())).To(Succeed())

	status := daemon.NewStatusHandle(os.Getpid())
	regulator := daemon.NewRegulator(
		daemon.RegulatorConfig{
			CheckInterval:     20 * time.Millisecond,
			RetryInterval:     10 * time.Millisecond,
			HeartbeatInterval: 10 * time.Millisecond,
			UnitCheckInterval: time.Hour,
		},
		service,
		daemon.NewScheduler(logger),
		status,
		logger,
	)
	service.Subscribe(regulator)

	handler := api.NewHandler(service, policy.NewRegistry(), status, logger)
	server := httptest.NewServer(api.NewRouter(handler, reg, logger))

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		store:    store,
		actuator: actuator,
		clock:    clock,
		service:  service,
		server:   server,
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() { h.done <- regulator.Run(ctx) }()
	return h
}

func (h *harness) stop() {
	h.cancel()
	Eventually(h.done).Should(Receive())
	h.server.Close()
	Expect(h.store.Close()).To(Succeed())
}

// exec posts an operation and returns its response.
func (h *harness) exec(kind string, args any) api.OperationResponse {
	body, err := json.Marshal(args)
	Expect(err).NotTo(HaveOccurred())

	resp, err := http.Post(h.server.URL+"/api/operations/"+kind, "application/json", bytes.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out api.OperationResponse
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return out
}

func (h *harness) get(path string, out any) {
	resp, err := http.Get(h.server.URL + path)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	Expect(resp.StatusCode).To(Equal(http.StatusOK))
	Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
}

func (h *harness) health() api.HealthResponse {
	var out api.HealthResponse
	h.get("/api/health", &out)
	return out
}

// obj is shorthand for operation arguments.
type obj = map[string]any
