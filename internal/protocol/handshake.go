// Copyright dSPACE GmbH. All rights reserved.

package protocol

import (
	cosim "github.com/dspace-group/veos-cosim-go"
)

// ConnectFrame is the client's opening request: the protocol version it
// speaks, which mode it is connecting as, and the server/client names used
// to route the request to the right simulation and to label it in logs.
type ConnectFrame struct {
	ProtocolVersion cosim.ProtocolVersion
	ClientMode      cosim.CoSimType
	ServerName      string
	ClientName      string
}

// SendConnect writes a Connect frame.
func SendConnect(w *Writer, f ConnectFrame) error {
	if err := WriteFrameKind(w, FrameConnect); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(f.ProtocolVersion)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(f.ClientMode)); err != nil {
		return err
	}
	if err := w.WriteString(f.ServerName); err != nil {
		return err
	}
	if err := w.WriteString(f.ClientName); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadConnect decodes a Connect frame. The caller has already consumed the
// frame kind tag via ReadFrameKind.
func ReadConnect(r *Reader) (ConnectFrame, error) {
	var f ConnectFrame
	version, err := r.ReadUint32()
	if err != nil {
		return f, err
	}
	f.ProtocolVersion = cosim.ProtocolVersion(version)
	mode, err := r.ReadUint32()
	if err != nil {
		return f, err
	}
	f.ClientMode = cosim.CoSimType(mode)
	if f.ServerName, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.ClientName, err = r.ReadString(); err != nil {
		return f, err
	}
	return f, nil
}

// SendConnectOk writes a ConnectOk frame using the codec negotiated for
// this connection (it gates whether the FlexRay catalog is present).
func SendConnectOk(w *Writer, codec Codec, info ConnectOkInfo) error {
	if err := WriteFrameKind(w, FrameConnectOk); err != nil {
		return err
	}
	if err := codec.SendConnectOk(w, info); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadConnectOk decodes a ConnectOk frame already dispatched past its
// frame kind tag.
func ReadConnectOk(r *Reader, codec Codec) (ConnectOkInfo, error) {
	return codec.ReadConnectOk(r)
}

// SendError writes a frame carrying a textual failure reason, used by
// either side to reject a Connect or abort a command in progress.
func SendError(w *Writer, message string) error {
	if err := WriteFrameKind(w, FrameError); err != nil {
		return err
	}
	if err := w.WriteString(message); err != nil {
		return err
	}
	return w.EndWrite()
}

// ReadError decodes the message carried on an Error frame.
func ReadError(r *Reader) (string, error) {
	return r.ReadString()
}

// SendOk writes a bare acknowledgement frame carrying no payload.
func SendOk(w *Writer) error {
	if err := WriteFrameKind(w, FrameOk); err != nil {
		return err
	}
	return w.EndWrite()
}
