package controller

import "github.com/micro-nova/callaudio-go/internal/models"

// SupportedRoutes computes the routes currently available from device
// topology. Speaker is always present; exactly one of wired headset and
// earpiece is present; bluetooth is present iff a bluetooth audio device is.
func SupportedRoutes(wiredHeadsetPluggedIn, bluetoothAvailable bool) models.RouteMask {
	mask := models.MaskOf(models.RouteSpeaker)
	if wiredHeadsetPluggedIn {
		mask |= models.MaskOf(models.RouteWiredHeadset)
	} else {
		mask |= models.MaskOf(models.RouteEarpiece)
	}
	if bluetoothAvailable {
		mask |= models.MaskOf(models.RouteBluetooth)
	}
	return mask
}

// supportedRoutesFrom reads the current topology from the device monitors.
func supportedRoutesFrom(d DeviceAvailability) models.RouteMask {
	return SupportedRoutes(d.IsWiredHeadsetPluggedIn(), d.IsBluetoothAvailable())
}
