package aloop

// transferResult collects the work a position update leaves for after the short lock is released.
type transferResult struct {
	bytes   uint64
	drained []*Stream
	xruns   [2]uint32
}

// transfer moves count bytes through the running streams. It must be called with d.mu held.
//
// With both directions running the playback buffer is copied into the capture buffer. A lone
// playback stream is drained into the sink, a lone capture stream is filled with silence. The
// stream cursors are advanced once, after the copy.
func (d *Device) transfer(count uint64) transferResult {
	var res transferResult

	var play, capt *Stream
	if d.running&SNDRV_PCM_STREAM_PLAYBACK.bit() != 0 {
		play = d.streams[SNDRV_PCM_STREAM_PLAYBACK]
	}
	if d.running&SNDRV_PCM_STREAM_CAPTURE.bit() != 0 {
		capt = d.streams[SNDRV_PCM_STREAM_CAPTURE]
	}

	if play != nil && play.draining {
		if avail := play.queued(); count > avail {
			count = avail
		}
	}

	if count == 0 {
		d.finishDrain(play, &res)

		return res
	}

	switch {
	case play != nil && capt != nil:
		copyLoop(play, capt, count)
	case play != nil:
		if d.sink != nil {
			play.ring.Segments(play.ring.Pos(), count, func(seg []byte) {
				d.sinkQueue = append(d.sinkQueue, seg...)
			})
		}
	case capt != nil:
		capacity := capt.ring.Cap()
		if capt.silence < capacity {
			capt.ring.Fill(capt.ring.Pos(), count, capt.silenceByte)
			if uint64(capacity-capt.silence) <= count {
				capt.silence = capacity
			} else {
				capt.silence += uint32(count)
			}
		}
	}

	for _, s := range [...]*Stream{play, capt} {
		if s == nil {
			continue
		}

		s.ring.Advance(count)
		s.hwPos += count

		if x := s.checkXrun(); x > 0 {
			res.xruns[s.dir] += x
		}
	}

	res.bytes = count
	d.finishDrain(play, &res)

	return res
}

// copyLoop copies count bytes from the playback cursor to the capture cursor, splitting the copy
// wherever either buffer wraps.
func copyLoop(play, capt *Stream, count uint64) {
	src, dst := play.ring.Bytes(), capt.ring.Bytes()
	srcPos, dstPos := play.ring.Pos(), capt.ring.Pos()
	srcCap, dstCap := uint32(len(src)), uint32(len(dst))

	for remaining := count; remaining > 0; {
		chunk := min(srcCap-srcPos, dstCap-dstPos)
		if uint64(chunk) > remaining {
			chunk = uint32(remaining)
		}

		copy(dst[dstPos:dstPos+chunk], src[srcPos:srcPos+chunk])

		if capt.silence > chunk {
			capt.silence -= chunk
		} else {
			capt.silence = 0
		}

		srcPos = (srcPos + chunk) % srcCap
		dstPos = (dstPos + chunk) % dstCap
		remaining -= uint64(chunk)
	}
}

// finishDrain stops a draining playback stream once everything written has been consumed.
func (d *Device) finishDrain(play *Stream, res *transferResult) {
	if play == nil || !play.draining || play.queued() > 0 {
		return
	}

	play.draining = false
	play.state = StatePrepared
	d.running &^= play.dir.bit()

	if play.drained != nil {
		close(play.drained)
		play.drained = nil
	}

	res.drained = append(res.drained, play)
}
