package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zsiec/stereoscope/internal/media"
)

// deviceFlags are the capture device options shared by probe and play.
type deviceFlags struct {
	device string
	size   string
	rate   string
	mjpeg  bool
}

func (d *deviceFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&d.device, "device", "", "capture from a device: default, firewire or x11; a URL argument names the device")
	f.StringVar(&d.size, "device-size", "", "requested capture size, WIDTHxHEIGHT")
	f.StringVar(&d.rate, "device-rate", "", "requested capture frame rate, NUM/DEN or NUM")
	f.BoolVar(&d.mjpeg, "device-mjpeg", false, "request MJPEG from the default device")
}

func (d *deviceFlags) request() (media.DeviceRequest, error) {
	var req media.DeviceRequest
	switch d.device {
	case "":
		return req, nil
	case "default":
		req.Device = media.SysDefault
	case "firewire":
		req.Device = media.Firewire
	case "x11":
		req.Device = media.X11
	default:
		return req, fmt.Errorf("unknown device %q", d.device)
	}
	if d.size != "" {
		if _, err := fmt.Sscanf(d.size, "%dx%d", &req.Width, &req.Height); err != nil || req.Width <= 0 || req.Height <= 0 {
			return req, fmt.Errorf("invalid --device-size %q", d.size)
		}
	}
	if d.rate != "" {
		if n, _ := fmt.Sscanf(d.rate, "%d/%d", &req.FrameRateNum, &req.FrameRateDen); n == 1 {
			req.FrameRateDen = 1
		}
		if req.FrameRateNum <= 0 || req.FrameRateDen <= 0 {
			return req, fmt.Errorf("invalid --device-rate %q", d.rate)
		}
	}
	req.RequestMJPEG = d.mjpeg
	return req, nil
}
