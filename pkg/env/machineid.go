package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "mlx90363"

// MachineID gets an application scoped ID of the machine, or "local" if
// the machine ID is not available.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		return "local"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
