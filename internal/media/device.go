package media

// Device selects a capture device type for inputs that are not files.
type Device int

const (
	NoDevice   Device = iota // the URL names a file or network stream
	SysDefault               // the system default video device (v4l2)
	Firewire                 // an IEEE 1394 device
	X11                      // an X11 screen grabber
)

func (d Device) String() string {
	switch d {
	case SysDefault:
		return "default"
	case Firewire:
		return "firewire"
	case X11:
		return "x11"
	default:
		return "none"
	}
}

// DeviceRequest asks for a capture device and optional capture parameters.
// Zero values mean "device default".
type DeviceRequest struct {
	Device       Device
	Width        int
	Height       int
	FrameRateNum int
	FrameRateDen int
	RequestMJPEG bool
}

// IsDevice reports whether the request names a capture device.
func (d DeviceRequest) IsDevice() bool {
	return d.Device != NoDevice
}
