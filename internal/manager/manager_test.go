package manager_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/mechanism"
	"github.com/san-kum/vmech/internal/phase"
	"github.com/san-kum/vmech/internal/trajectory"
)

func writeLine(dir, name string, from, to []float64) string {
	g, err := trajectory.NewLinearGMR(from, to, 11, 0.01)
	Expect(err).NotTo(HaveOccurred())
	path := filepath.Join(dir, name+".yaml")
	Expect(trajectory.Save(path, g)).To(Succeed())
	return path
}

var _ = Describe("Mode", func() {
	It("parses names case-insensitively and defaults to soft", func() {
		m, err := manager.ParseMode("HARD")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(manager.Hard))

		m, err = manager.ParseMode("")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(manager.Soft))

		_, err = manager.ParseMode("blend")
		Expect(err).To(MatchError(dynamo.ErrParameterBounds))
	})
})

var _ = Describe("Manager", func() {
	var (
		m   *manager.Manager
		dir string
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "vmech-manager")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
		m = manager.New()
	})

	Describe("InsertVM", func() {
		It("exposes the initial state before any update", func() {
			path := writeLine(dir, "A", []float64{0.1, 0.2, 0.3}, []float64{1, 1, 1})
			Expect(m.InsertVM(path)).To(Succeed())
			Expect(m.Len()).To(Equal(1))

			out := make([]float64, 3)
			Expect(m.GetVmPosition(m.Len()-1, out)).To(Succeed())
			Expect(out[0]).To(BeNumerically("~", 0.1, 1e-9))
			Expect(out[1]).To(BeNumerically("~", 0.2, 1e-9))
			Expect(out[2]).To(BeNumerically("~", 0.3, 1e-9))
		})

		It("leaves the pool unchanged when the artifact is missing", func() {
			err := m.InsertVM(filepath.Join(dir, "missing.yaml"))
			Expect(err).To(MatchError(dynamo.ErrModelLoad))
			Expect(m.Len()).To(BeZero())
		})

		It("leaves the pool unchanged when the artifact is unparsable", func() {
			path := filepath.Join(dir, "bad.yaml")
			Expect(os.WriteFile(path, []byte("kind: [unterminated"), 0o644)).To(Succeed())
			Expect(m.InsertVM(path)).To(MatchError(dynamo.ErrModelLoad))
			Expect(m.Len()).To(BeZero())
		})

		It("leaves the pool unchanged when a covariance row is short", func() {
			path := filepath.Join(dir, "ragged.yaml")
			body := "kind: gmr\ndim: 3\ncomponents:\n  - prior: 1\n    mean: [0, 0, 0, 0]\n" +
				"    covariance: [[1, 0, 0, 0], [], [0, 0, 1, 0], [0, 0, 0, 1]]\n"
			Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
			Expect(m.InsertVM(path)).To(MatchError(dynamo.ErrModelLoad))
			Expect(m.Len()).To(BeZero())
		})

		It("rejects models that are not Cartesian", func() {
			g, err := trajectory.NewLinearGMR([]float64{0, 0}, []float64{1, 1}, 5, 0.01)
			Expect(err).NotTo(HaveOccurred())
			path := filepath.Join(dir, "planar.yaml")
			Expect(trajectory.Save(path, g)).To(Succeed())

			err = m.InsertVM(path)
			Expect(err).To(MatchError(dynamo.ErrModelLoad))
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
			Expect(m.Len()).To(BeZero())
		})

		It("uses the configured loader", func() {
			var seen string
			m = manager.New(manager.WithLoader(func(path string) (*trajectory.Model, error) {
				seen = path
				g, err := trajectory.NewLinearGMR([]float64{0, 0, 0}, []float64{1, 0, 0}, 3, 0.01)
				if err != nil {
					return nil, err
				}
				return trajectory.NewModel(g), nil
			}))
			Expect(m.InsertVM("virtual://x")).To(Succeed())
			Expect(seen).To(Equal("virtual://x"))
		})
	})

	Describe("DeleteVM", func() {
		It("shifts later mechanisms down by one", func() {
			Expect(m.InsertVM(writeLine(dir, "A", []float64{0, 0, 0}, []float64{1, 0, 0}))).To(Succeed())
			Expect(m.InsertVM(writeLine(dir, "B", []float64{5, 5, 5}, []float64{6, 5, 5}))).To(Succeed())

			Expect(m.DeleteVM(0)).To(Succeed())
			Expect(m.Len()).To(Equal(1))

			out := make([]float64, 3)
			Expect(m.GetVmPosition(0, out)).To(Succeed())
			Expect(out[0]).To(BeNumerically("~", 5, 1e-9))
			Expect(m.GetVmPosition(1, out)).To(MatchError(dynamo.ErrIndexOutOfRange))
		})

		It("keeps the last weights aligned with the pool", func() {
			m.Insert(&fakeMechanism{distance: 3})
			m.Insert(&fakeMechanism{distance: 2})
			m.Insert(&fakeMechanism{distance: 1})
			out := make([]float64, 3)
			Expect(m.Update([]float64{0, 0, 0}, []float64{0, 0, 0}, 0.001, out, manager.Hard)).To(Succeed())

			Expect(m.DeleteVM(0)).To(Succeed())
			w := make([]float64, m.Len())
			m.Weights(w)
			Expect(w).To(Equal([]float64{0, 1}))
		})

		It("fails on out of range indices", func() {
			Expect(m.DeleteVM(0)).To(MatchError(dynamo.ErrIndexOutOfRange))
			m.Insert(&fakeMechanism{})
			Expect(m.DeleteVM(-1)).To(MatchError(dynamo.ErrIndexOutOfRange))
			Expect(m.DeleteVM(1)).To(MatchError(dynamo.ErrIndexOutOfRange))
			Expect(m.Len()).To(Equal(1))
		})
	})

	Describe("Update", func() {
		pos := []float64{0, 0, 0}
		vel := []float64{0, 0, 0}

		It("validates buffer sizes and the timestep", func() {
			out := make([]float64, 3)
			Expect(m.Update([]float64{0, 0}, vel, 0.001, out, manager.Soft)).To(MatchError(dynamo.ErrDimensionMismatch))
			Expect(m.Update(pos, []float64{0}, 0.001, out, manager.Soft)).To(MatchError(dynamo.ErrDimensionMismatch))
			Expect(m.Update(pos, vel, 0.001, make([]float64, 4), manager.Soft)).To(MatchError(dynamo.ErrDimensionMismatch))
			Expect(m.Update(pos, vel, 0, out, manager.Soft)).To(MatchError(dynamo.ErrInvalidTimestep))
		})

		It("returns a zero force for an empty pool", func() {
			out := []float64{9, 9, 9, 9, 9, 9}
			Expect(m.Update(pos, vel, 0.001, out, manager.Soft)).To(Succeed())
			Expect(out).To(Equal([]float64{0, 0, 0, 0, 0, 0}))
		})

		It("accepts a pose and zeroes the torque part of a wrench", func() {
			m.Insert(&fakeMechanism{probability: 1})
			out := []float64{9, 9, 9, 9, 9, 9}
			pose := []float64{0, 0, 0, 1, 0, 0, 0}
			Expect(m.Update(pose, vel, 0.001, out, manager.Soft)).To(Succeed())
			Expect(out).To(Equal([]float64{1, 0, 0, 0, 0, 0}))
		})

		Context("in hard mode", func() {
			It("selects the closest mechanism and freezes the others", func() {
				far := &fakeMechanism{distance: 2}
				near := &fakeMechanism{distance: 0.5}
				m.Insert(far)
				m.Insert(near)

				out := make([]float64, 3)
				Expect(m.Update(pos, vel, 0.001, out, manager.Hard)).To(Succeed())

				w := make([]float64, 2)
				m.Weights(w)
				Expect(w).To(Equal([]float64{0, 1}))
				Expect(far.updates).To(BeZero())
				Expect(near.updates).To(Equal(1))
				Expect(near.scale).To(Equal(1.0))
				Expect(out[0]).To(Equal(1.0))
			})

			It("breaks ties by the lowest index", func() {
				a := &fakeMechanism{distance: 1}
				b := &fakeMechanism{distance: 1}
				c := &fakeMechanism{distance: 3}
				m.Insert(c)
				m.Insert(a)
				m.Insert(b)

				out := make([]float64, 3)
				Expect(m.Update(pos, vel, 0.001, out, manager.Hard)).To(Succeed())
				w := make([]float64, 3)
				m.Weights(w)
				Expect(w).To(Equal([]float64{0, 1, 0}))
			})

			It("resumes a frozen mechanism from its held phase", func() {
				a := &fakeMechanism{distance: 1}
				b := &fakeMechanism{distance: 2}
				m.Insert(a)
				m.Insert(b)
				out := make([]float64, 3)
				for i := 0; i < 5; i++ {
					Expect(m.Update(pos, vel, 0.001, out, manager.Hard)).To(Succeed())
				}
				Expect(b.phase).To(BeZero())

				b.distance = 0
				Expect(m.Update(pos, vel, 0.001, out, manager.Hard)).To(Succeed())
				Expect(b.phase).To(BeNumerically("~", 0.001, 1e-15))
				Expect(a.phase).To(BeNumerically("~", 0.005, 1e-15))
			})
		})

		Context("in soft mode", func() {
			It("normalises probabilities into weights", func() {
				a := &fakeMechanism{probability: 0.2}
				b := &fakeMechanism{probability: 0.6}
				c := &fakeMechanism{probability: 0}
				m.Insert(a)
				m.Insert(b)
				m.Insert(c)

				out := make([]float64, 3)
				Expect(m.Update(pos, vel, 0.001, out, manager.Soft)).To(Succeed())
				w := make([]float64, 3)
				m.Weights(w)
				Expect(w[0]).To(BeNumerically("~", 0.25, 1e-12))
				Expect(w[1]).To(BeNumerically("~", 0.75, 1e-12))
				Expect(w[2]).To(BeZero())
				Expect(w[0] + w[1] + w[2]).To(BeNumerically("~", 1, 1e-12))
				Expect(c.updates).To(BeZero())
				Expect(out[0]).To(BeNumerically("~", 1, 1e-12))
			})

			It("falls back to uniform weights when every probability vanishes", func() {
				for i := 0; i < 4; i++ {
					m.Insert(&fakeMechanism{probability: 1e-300})
				}
				out := make([]float64, 3)
				Expect(m.Update(pos, vel, 0.001, out, manager.Soft)).To(Succeed())
				w := make([]float64, 4)
				m.Weights(w)
				Expect(w).To(Equal([]float64{0.25, 0.25, 0.25, 0.25}))
			})
		})

		It("sums to one over real mechanisms", func() {
			Expect(m.InsertVM(writeLine(dir, "A", []float64{0, 0, 0}, []float64{1, 0, 0}))).To(Succeed())
			Expect(m.InsertVM(writeLine(dir, "B", []float64{0, 0.1, 0}, []float64{1, 0.1, 0}))).To(Succeed())

			out := make([]float64, 3)
			Expect(m.Update([]float64{0, 0.02, 0}, vel, 0.001, out, manager.Soft)).To(Succeed())
			w := make([]float64, 2)
			m.Weights(w)
			Expect(w[0] + w[1]).To(BeNumerically("~", 1, 1e-12))
			Expect(w[0]).To(BeNumerically(">", w[1]))
			for _, f := range out {
				Expect(math.IsNaN(f) || math.IsInf(f, 0)).To(BeFalse())
			}
		})

		It("does not allocate", func() {
			Expect(m.InsertVM(writeLine(dir, "A", []float64{0, 0, 0}, []float64{1, 1, 1}))).To(Succeed())
			Expect(m.InsertVM(writeLine(dir, "B", []float64{0, 0, 1}, []float64{1, 1, 0}))).To(Succeed())
			p := []float64{0.2, 0.1, 0.3}
			out := make([]float64, 3)
			for _, mode := range []manager.Mode{manager.Soft, manager.Hard} {
				allocs := testing.AllocsPerRun(50, func() {
					_ = m.Update(p, vel, 0.001, out, mode)
				})
				Expect(allocs).To(BeZero(), mode.String())
			}
		})
	})

	Describe("accessors", func() {
		It("fail cleanly on bad indices and short buffers", func() {
			out := make([]float64, 3)
			Expect(m.GetVmPosition(0, out)).To(MatchError(dynamo.ErrIndexOutOfRange))
			Expect(m.GetVmVelocity(0, out)).To(MatchError(dynamo.ErrIndexOutOfRange))
			_, err := m.Phase(0)
			Expect(err).To(MatchError(dynamo.ErrIndexOutOfRange))
			Expect(m.SetActive(0, true)).To(MatchError(dynamo.ErrIndexOutOfRange))

			m.Insert(&fakeMechanism{})
			Expect(m.GetVmPosition(0, make([]float64, 2))).To(MatchError(dynamo.ErrDimensionMismatch))
			Expect(m.GetPositionDim()).To(Equal(3))
		})

		It("forwards activation and direction", func() {
			f := &fakeMechanism{}
			m.Insert(f)
			Expect(m.SetActive(0, true)).To(Succeed())
			Expect(m.SetDirection(0, phase.Backward)).To(Succeed())
			Expect(f.active).To(BeTrue())
			Expect(f.back).To(BeTrue())
			Expect(m.SetDirection(0, phase.Forward)).To(Succeed())
			Expect(f.back).To(BeFalse())
		})
	})

	Describe("end to end", func() {
		It("drives an active mechanism forward for 20 ticks", func() {
			m = manager.New(manager.WithMechanismConfig(mechanism.Config{
				Order: phase.SecondOrder,
				Gains: mechanism.DefaultGains(phase.SecondOrder),
			}))
			Expect(m.InsertVM(writeLine(dir, "A", []float64{0, 0, 0}, []float64{1, 1, 1}))).To(Succeed())
			Expect(m.SetActive(0, true)).To(Succeed())
			Expect(m.SetDirection(0, phase.Forward)).To(Succeed())

			robot := []float64{1, 1, 1}
			out := make([]float64, 3)
			prev, err := m.Phase(0)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 20; i++ {
				Expect(m.Update(robot, robot, 0.001, out, manager.Soft)).To(Succeed())
				Expect(out).To(HaveLen(3))
				ph, err := m.Phase(0)
				Expect(err).NotTo(HaveOccurred())
				Expect(ph).To(BeNumerically(">=", prev))
				Expect(ph).To(BeNumerically("<=", 1))
				prev = ph
			}
			Expect(prev).To(BeNumerically(">", 0))
		})

		It("offers the same contract over arrays", func() {
			Expect(m.InsertVM(writeLine(dir, "A", []float64{0, 0, 0}, []float64{1, 1, 1}))).To(Succeed())
			a := manager.New()
			Expect(a.InsertVM(writeLine(dir, "A", []float64{0, 0, 0}, []float64{1, 1, 1}))).To(Succeed())

			slice := make([]float64, 3)
			Expect(m.Update([]float64{0.3, 0.2, 0.1}, []float64{0, 0, 0}, 0.001, slice, manager.Hard)).To(Succeed())
			arr, err := a.UpdateArray([3]float64{0.3, 0.2, 0.1}, [3]float64{}, 0.001, manager.Hard)
			Expect(err).NotTo(HaveOccurred())
			Expect(arr[:]).To(Equal(slice))
		})
	})
})
