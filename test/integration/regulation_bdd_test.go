//go:build integration

package integration

import (
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/access_mon/test/fixtures"
)

// Monday 10:00, inside the school-hours range used below.
var monday10 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

const hourMs = int64(time.Hour / time.Millisecond)

var _ = Describe("Regulation daemon", func() {
	var (
		dataDir  string
		actuator *fixtures.FakeActuator
		clock    *fixtures.ManualClock
		h        *harness
	)

	BeforeEach(func() {
		var err error
		dataDir, err = os.MkdirTemp("", "accessmon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		actuator = fixtures.NewFakeActuator()
		clock = fixtures.NewManualClock(monday10)
		h = startHarness(dataDir, actuator, clock)
	})

	AfterEach(func() {
		if h != nil {
			h.stop()
		}
		os.RemoveAll(dataDir)
	})

	createKid := func() {
		Expect(h.exec("create_user", obj{"id": "u1", "username": "kid", "password": "real-pass"}).Outcome).
			To(Equal(domain.OutcomeSuccess))
	}

	protectSchoolHours := func() {
		Expect(h.exec("create_policy", obj{
			"user_id": "u1", "id": "p1", "name": "school", "enabled": true,
			"protector": obj{"kind": "for_duration", "duration_ms": hourMs},
		}).Outcome).To(Equal(domain.OutcomeSuccess))
		Expect(h.exec("add_policy_rule", obj{
			"user_id": "u1", "policy_id": "p1", "rule_id": "r1",
			"activator": obj{"kind": "in_time_range", "time_range": obj{"from": "09:00", "till": "17:00"}},
		}).Outcome).To(Equal(domain.OutcomeSuccess))
	}

	Describe("Screen regulation", func() {
		Context("when a protected policy applies", func() {
			BeforeEach(func() {
				createKid()
				protectSchoolHours()
			})

			It("should lock the account and end its sessions", func() {
				Eventually(func() string { return actuator.Password("kid") }).Should(Equal(lockPassword))
				Expect(actuator.Terminations("kid")).To(BeNumerically(">=", 1))

				var user usecase.UserView
				Eventually(func() domain.BlockState {
					h.get("/api/users/u1", &user)
					return user.BlockState
				}).Should(Equal(domain.BlockStateBlocked))
				Expect(user.Policies).To(HaveLen(1))
				Expect(user.Policies[0].Protected).To(BeTrue())
			})

			It("should refuse to loosen the policy while protected", func() {
				Expect(h.exec("delete_policy", obj{"user_id": "u1", "policy_id": "p1"}).Outcome).
					To(Equal(domain.OutcomeMayNotDeleteWhileEnabled))
				Expect(h.exec("disable_policy", obj{"user_id": "u1", "policy_id": "p1"}).Outcome).
					To(Equal(domain.OutcomeMayNotMakeRuleLessRestrictive))
				Expect(h.exec("delete_user", obj{"user_id": "u1"}).Outcome).
					To(Equal(domain.OutcomeMayNotDeleteWhileEnabled))
			})

			It("should restore the real password once the protector runs out", func() {
				Eventually(func() string { return actuator.Password("kid") }).Should(Equal(lockPassword))

				clock.Advance(2 * time.Hour)

				Eventually(func() string { return actuator.Password("kid") }).Should(Equal("real-pass"))
				Expect(h.exec("delete_policy", obj{"user_id": "u1", "policy_id": "p1"}).Outcome).
					To(Equal(domain.OutcomeSuccess))
			})

			It("should keep the lock across a restart", func() {
				Eventually(func() string { return actuator.Password("kid") }).Should(Equal(lockPassword))
				h.stop()

				// After a reboot the OS state is unknown until re-asserted.
				rebooted := fixtures.NewFakeActuator()
				h = startHarness(dataDir, rebooted, clock)

				Eventually(func() string { return rebooted.Password("kid") }).Should(Equal(lockPassword))
				Expect(h.exec("delete_policy", obj{"user_id": "u1", "policy_id": "p1"}).Outcome).
					To(Equal(domain.OutcomeMayNotDeleteWhileEnabled))
			})
		})

		Context("when the OS refuses a change", func() {
			It("should retry until the account is locked", func() {
				createKid()
				Eventually(func() string { return actuator.Password("kid") }).Should(Equal("real-pass"))

				actuator.FailNext(errors.New("chpasswd: Authentication token manipulation error"))
				protectSchoolHours()

				Eventually(func() string { return actuator.Password("kid") }).Should(Equal(lockPassword))
				Expect(h.health().Daemon.Failures).To(BeNumerically(">=", 1))
			})
		})

		Context("when the user is deleted", func() {
			It("should give the account its password back and stop regulating it", func() {
				createKid()
				protectSchoolHours()
				Eventually(func() string { return actuator.Password("kid") }).Should(Equal(lockPassword))

				clock.Advance(2 * time.Hour)
				Eventually(func() string { return actuator.Password("kid") }).Should(Equal("real-pass"))

				Expect(h.exec("delete_user", obj{"user_id": "u1"}).Outcome).To(Equal(domain.OutcomeSuccess))

				var users []usecase.UserView
				h.get("/api/users", &users)
				Expect(users).To(BeEmpty())

				calls := actuator.Calls()
				Consistently(actuator.Calls, 100*time.Millisecond).Should(Equal(calls))
			})
		})
	})

	Describe("Password protectors", func() {
		BeforeEach(func() {
			createKid()
			Expect(h.exec("create_policy", obj{
				"user_id": "u1", "id": "p1", "name": "weekends", "enabled": true,
				"protector": obj{"kind": "by_password", "password": "parent-secret"},
			}).Outcome).To(Equal(domain.OutcomeSuccess))
		})

		It("should throttle unlock attempts per user", func() {
			attempts := usecase.DefaultServiceConfig().UnlockAttemptsPerMinute
			for i := 0; i < attempts; i++ {
				Expect(h.exec("unlock_policy", obj{"user_id": "u1", "policy_id": "p1", "password": "guess"}).Outcome).
					To(Equal(domain.OutcomeWrongPassword))
			}
			Expect(h.exec("unlock_policy", obj{"user_id": "u1", "policy_id": "p1", "password": "parent-secret"}).Outcome).
				To(Equal(domain.OutcomeTooManyAttempts))

			clock.Advance(time.Minute)
			Expect(h.exec("unlock_policy", obj{"user_id": "u1", "policy_id": "p1", "password": "parent-secret"}).Outcome).
				To(Equal(domain.OutcomeSuccess))
			Expect(h.exec("disable_policy", obj{"user_id": "u1", "policy_id": "p1"}).Outcome).
				To(Equal(domain.OutcomeSuccess))
		})
	})

	Describe("Network regulation", func() {
		BeforeEach(func() {
			Expect(h.exec("create_enforcer", obj{"id": "e1", "os_user_id": 1001, "username": "kid"}).Outcome).
				To(Equal(domain.OutcomeSuccess))
			Expect(h.exec("add_enforcer_rule", obj{
				"enforcer_id": "e1", "rule_id": "n1",
				"activator": obj{"kind": "always_on"},
				"enabler":   obj{"kind": "for_duration", "duration_ms": hourMs},
			}).Outcome).To(Equal(domain.OutcomeSuccess))
		})

		It("should drop traffic while the rule is enabled and allow it afterwards", func() {
			Eventually(func() bool { return actuator.TrafficBlocked(1001) }).Should(BeTrue())

			Expect(h.exec("delete_enforcer_rule", obj{"enforcer_id": "e1", "rule_id": "n1"}).Outcome).
				To(Equal(domain.OutcomeMayNotDeleteWhileEnabled))
			Expect(h.exec("decrement_rule_enabler", obj{"enforcer_id": "e1", "rule_id": "n1", "duration_ms": hourMs / 2}).Outcome).
				To(Equal(domain.OutcomeWouldMakeRuleLessRestrictive))

			clock.Advance(2 * time.Hour)

			Eventually(func() bool { return actuator.TrafficBlocked(1001) }).Should(BeFalse())
			Expect(h.exec("delete_enforcer", obj{"enforcer_id": "e1"}).Outcome).To(Equal(domain.OutcomeSuccess))
		})

		It("should reject extending the enabler past the ceiling", func() {
			Expect(h.exec("increment_rule_enabler", obj{
				"enforcer_id": "e1", "rule_id": "n1", "duration_ms": 3 * 7 * 24 * hourMs,
			}).Outcome).To(Equal(domain.OutcomeWouldBeEffectiveForTooLong))
		})

		It("should report the evaluation", func() {
			var enforcers []usecase.EnforcerView
			Eventually(func() domain.BlockState {
				h.get("/api/enforcers", &enforcers)
				if len(enforcers) == 0 {
					return ""
				}
				return enforcers[0].BlockState
			}).Should(Equal(domain.BlockStateBlocked))
			Expect(enforcers[0].OSUserID).To(Equal(uint32(1001)))
			Expect(enforcers[0].Protected).To(BeTrue())
		})
	})
})
