package pps

import (
	"fmt"
	"strings"
)

// versionQueue walks the candidate versions of one package in decision order:
// the admissible locked version first (when one exists), then the remaining
// versions newest-first. It records why each rejected version failed; those
// records both feed conflict reports and mark earlier decision frames as
// worth revisiting during backjumping.
type versionQueue struct {
	id        ProjectIdentifier
	pi        []Version
	lockv     Version
	fails     []failedVersion
	b         *sourceBridge
	allowPre  bool
	failed    bool
	allLoaded bool
}

func newVersionQueue(id ProjectIdentifier, lockv Version, allowPre bool, b *sourceBridge) (*versionQueue, error) {
	vq := &versionQueue{
		id:       id,
		b:        b,
		allowPre: allowPre,
	}

	// An admissible locked version goes in first so an unchanged lock entry
	// is preferred over anything newer.
	if lockv != nil {
		vq.lockv = lockv
		vq.pi = append(vq.pi, lockv)
	}

	if len(vq.pi) == 0 {
		var err error
		vq.pi, err = vq.b.listVersions(vq.id, vq.allowPre)
		if err != nil {
			return nil, err
		}
		vq.allLoaded = true
	}

	return vq, nil
}

func (vq *versionQueue) current() Version {
	if len(vq.pi) > 0 {
		return vq.pi[0]
	}
	return nil
}

// advance moves the queue to the next version, recording the failure that
// eliminated the current one.
func (vq *versionQueue) advance(fail error) (err error) {
	if len(vq.pi) == 0 {
		return
	}

	vq.fails = append(vq.fails, failedVersion{
		v: vq.pi[0],
		f: fail,
	})
	vq.pi = vq.pi[1:]

	// If the seeded lock entry was all we had, load the full list now and
	// drop the already-tried lock version from it.
	if len(vq.pi) == 0 {
		if vq.allLoaded {
			return
		}

		vq.allLoaded = true
		vq.pi, err = vq.b.listVersions(vq.id, vq.allowPre)
		if err != nil {
			return err
		}

		if vq.lockv != nil {
			for k, pi := range vq.pi {
				if pi.Compare(vq.lockv) == 0 {
					vq.pi = append(vq.pi[:k], vq.pi[k+1:]...)
					break
				}
			}
		}

		if len(vq.pi) == 0 {
			return
		}
	}

	// The current version failed; the next one has not, yet.
	vq.failed = false
	return
}

// isExhausted reports whether the queue is definitely empty. It may return a
// false negative when the lock seed has not yet been followed by a full load.
func (vq *versionQueue) isExhausted() bool {
	if !vq.allLoaded {
		return false
	}
	return len(vq.pi) == 0
}

func (vq *versionQueue) String() string {
	vs := make([]string, 0, len(vq.pi))
	for _, v := range vq.pi {
		vs = append(vs, v.String())
	}
	return fmt.Sprintf("[%s]", strings.Join(vs, ", "))
}
