package mlx90363

import "github.com/golang/glog"

// interpret validates the received frame and decodes it into the owner.
// It runs once per completed frame, either at the end of the completion
// sequence or from the owner's Update.
func (s *Session) interpret() {
	check := s.Checksum
	if check == nil {
		check = Checksum
	}
	s.frames.Add(1)
	state := StateChecksumFailed
	if VerifyWith(s.rx, check) {
		state = s.owner.apply(s.rx)
	} else {
		s.crcFailures.Add(1)
		if glog.V(2) {
			glog.Infof("%s: checksum mismatch %s", s.owner.Name, s.rx)
		}
	}
	if state == StateOther {
		s.others.Add(1)
		if glog.V(2) {
			glog.Infof("%s: %s response %s", s.owner.Name, s.rx.Opcode(), s.rx)
		}
	}
	s.state.Store(int32(state))
	if o := s.Observer; o != nil {
		o.FrameCompleted(s.owner.Name, state)
	}
}
