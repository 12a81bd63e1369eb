package libvirt

import (
	"fmt"
	"strings"

	golibvirt "github.com/digitalocean/go-libvirt"

	"vm-health-agent/internal/model"
)

// Typed-parameter fields of virConnectGetAllDomainStats used here.
const (
	fieldState            = "state.state"
	fieldCPUTime          = "cpu.time"
	fieldVCPUCurrent      = "vcpu.current"
	fieldBalloonMaximum   = "balloon.maximum"
	fieldBalloonAvailable = "balloon.available"
	fieldBalloonUnused    = "balloon.unused"
)

const statsMask = uint32(golibvirt.DomainStatsState | golibvirt.DomainStatsCPUTotal | golibvirt.DomainStatsBalloon | golibvirt.DomainStatsVCPU)

// domainStats is the subset of one stats record the health report needs.
type domainStats struct {
	id     string
	name   string
	state  uint64
	fields map[string]uint64
}

func parseRecord(rec golibvirt.DomainStatsRecord) domainStats {
	ds := domainStats{
		id:     uuidToString(rec.Dom.UUID),
		name:   rec.Dom.Name,
		fields: map[string]uint64{},
	}
	for _, p := range rec.Params {
		if _, isString := p.Value.I.(string); isString {
			continue
		}
		if strings.EqualFold(p.Field, fieldState) {
			ds.state = asUint64(p.Value.I)
			continue
		}
		ds.fields[p.Field] = asUint64(p.Value.I)
	}
	return ds
}

func (d domainStats) record(uri string) model.InstanceRecord {
	meta := map[string]string{
		model.MetaName:   d.name,
		model.MetaZone:   hostOf(uri),
		model.MetaStatus: domainStateString(d.state),
	}
	if v := d.fields[fieldVCPUCurrent]; v > 0 {
		meta[model.MetaMachineType] = fmt.Sprintf("%dvcpu-%dmib", v, d.fields[fieldBalloonMaximum]/1024)
	}
	return model.InstanceRecord{
		InstanceID: d.id,
		State:      classifyDomainState(d.state),
		Metadata:   meta,
	}
}

// memoryUsedPct is only known when the guest balloon driver reports available
// and unused memory; without it the value is absent.
func (d domainStats) memoryUsedPct() (float64, bool) {
	avail, okAvail := d.fields[fieldBalloonAvailable]
	unused, okUnused := d.fields[fieldBalloonUnused]
	if !okAvail || !okUnused || avail == 0 {
		return 0, false
	}
	if unused > avail {
		unused = avail
	}
	return clampPct(float64(avail-unused) / float64(avail) * 100), true
}

func (d domainStats) vcpus() uint64 {
	if v := d.fields[fieldVCPUCurrent]; v > 0 {
		return v
	}
	return 1
}

// cpuPct converts the cpu.time delta between two readings into percent of the
// domain's vCPU capacity.
func cpuPct(prevNs, curNs uint64, seconds float64, vcpus uint64) (float64, bool) {
	if seconds <= 0 || curNs < prevNs || vcpus == 0 {
		return 0, false
	}
	used := float64(curNs-prevNs) / 1e9
	return clampPct(used / seconds / float64(vcpus) * 100), true
}

func clampPct(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func classifyDomainState(v uint64) model.InstanceState {
	switch domainStateString(v) {
	case "running":
		return model.StateRunning
	case "shutoff", "shutdown":
		return model.StateStopped
	default:
		return model.StateOther
	}
}

func domainStateString(v uint64) string {
	switch v {
	case 0:
		return "nostate"
	case 1:
		return "running"
	case 2:
		return "blocked"
	case 3:
		return "paused"
	case 4:
		return "shutdown"
	case 5:
		return "shutoff"
	case 6:
		return "crashed"
	case 7:
		return "pmsuspended"
	default:
		return "unknown"
	}
}

func hostOf(uri string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if rest == "" {
		return "localhost"
	}
	return rest
}

func asUint64(v any) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case uint32:
		return uint64(t)
	case int64:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case int32:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case int:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case float64:
		if t < 0 {
			return 0
		}
		return uint64(t)
	default:
		return 0
	}
}

func uuidToString(u golibvirt.UUID) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uint32(u[0])<<24|uint32(u[1])<<16|uint32(u[2])<<8|uint32(u[3]),
		uint16(u[4])<<8|uint16(u[5]),
		uint16(u[6])<<8|uint16(u[7]),
		uint16(u[8])<<8|uint16(u[9]),
		uint64(u[10])<<40|uint64(u[11])<<32|uint64(u[12])<<24|uint64(u[13])<<16|uint64(u[14])<<8|uint64(u[15]),
	)
}
