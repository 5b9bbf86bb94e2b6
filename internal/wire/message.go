package wire

import (
	"bytes"
	"encoding/binary"
)

// Request is the decoded form of a MarshalledRequest (spec.md §6).
type Request struct {
	ID   int32
	Type RequestType

	// Batch body: a list of small sets for the worker to merge locally.
	BatchSets []ClusterSet

	// Partial body.
	StartIndex, EndIndex, ClusterIndex int32
	Cluster                            Cluster
	Set                                ClusterSet

	// Alignment body.
	Seq1ID, Seq2ID uint32
	Env            string // environment name to score under
}

// Response is the decoded form of a MarshalledResponse: it mirrors the
// request header plus the partial-merge indices and the resulting payload.
type Response struct {
	ID   int32
	Type RequestType

	StartIndex, EndIndex, ClusterIndex int32
	Set                                ClusterSet

	// Alignment result fields, populated when Type == TypeAlignment.
	Seq1ID, Seq2ID             uint32
	Score                      float64
	PAMDistance, PAMVariance   float64
	Seq1Min, Seq1Max           int32
	Seq2Min, Seq2Max           int32
}

// MarshalRequest encodes req per spec.md §6's frozen header+body layout.
func MarshalRequest(req Request) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, byteOrder, req.ID)
	buf.WriteByte(byte(req.Type))

	switch req.Type {
	case TypeBatch:
		binary.Write(&buf, byteOrder, uint32(len(req.BatchSets)))
		for _, s := range req.BatchSets {
			writeSet(&buf, s)
		}
	case TypePartial:
		binary.Write(&buf, byteOrder, req.StartIndex)
		binary.Write(&buf, byteOrder, req.EndIndex)
		binary.Write(&buf, byteOrder, req.ClusterIndex)
		writeCluster(&buf, req.Cluster)
		writeSet(&buf, req.Set)
	case TypeAlignment:
		binary.Write(&buf, byteOrder, req.Seq1ID)
		binary.Write(&buf, byteOrder, req.Seq2ID)
		writeString(&buf, req.Env)
	}
	return buf.Bytes()
}

// UnmarshalRequest is the inverse of MarshalRequest.
func UnmarshalRequest(b []byte) (Request, error) {
	r := bytes.NewReader(b)
	var req Request
	if err := binary.Read(r, byteOrder, &req.ID); err != nil {
		return Request{}, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return Request{}, err
	}
	req.Type = RequestType(typeByte)

	switch req.Type {
	case TypeBatch:
		var n uint32
		if err := binary.Read(r, byteOrder, &n); err != nil {
			return Request{}, err
		}
		req.BatchSets = make([]ClusterSet, n)
		for i := range req.BatchSets {
			s, err := readSet(r)
			if err != nil {
				return Request{}, err
			}
			req.BatchSets[i] = s
		}
	case TypePartial:
		if err := binary.Read(r, byteOrder, &req.StartIndex); err != nil {
			return Request{}, err
		}
		if err := binary.Read(r, byteOrder, &req.EndIndex); err != nil {
			return Request{}, err
		}
		if err := binary.Read(r, byteOrder, &req.ClusterIndex); err != nil {
			return Request{}, err
		}
		c, err := readCluster(r)
		if err != nil {
			return Request{}, err
		}
		req.Cluster = c
		s, err := readSet(r)
		if err != nil {
			return Request{}, err
		}
		req.Set = s
	case TypeAlignment:
		if err := binary.Read(r, byteOrder, &req.Seq1ID); err != nil {
			return Request{}, err
		}
		if err := binary.Read(r, byteOrder, &req.Seq2ID); err != nil {
			return Request{}, err
		}
		env, err := readString(r)
		if err != nil {
			return Request{}, err
		}
		req.Env = env
	}
	return req, nil
}

// MarshalResponse encodes resp.
func MarshalResponse(resp Response) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, byteOrder, resp.ID)
	buf.WriteByte(byte(resp.Type))
	binary.Write(&buf, byteOrder, resp.StartIndex)
	binary.Write(&buf, byteOrder, resp.EndIndex)
	binary.Write(&buf, byteOrder, resp.ClusterIndex)

	switch resp.Type {
	case TypeBatch, TypePartial:
		writeSet(&buf, resp.Set)
	case TypeAlignment:
		binary.Write(&buf, byteOrder, resp.Seq1ID)
		binary.Write(&buf, byteOrder, resp.Seq2ID)
		binary.Write(&buf, byteOrder, resp.Score)
		binary.Write(&buf, byteOrder, resp.PAMDistance)
		binary.Write(&buf, byteOrder, resp.PAMVariance)
		binary.Write(&buf, byteOrder, resp.Seq1Min)
		binary.Write(&buf, byteOrder, resp.Seq1Max)
		binary.Write(&buf, byteOrder, resp.Seq2Min)
		binary.Write(&buf, byteOrder, resp.Seq2Max)
	}
	return buf.Bytes()
}

// UnmarshalResponse is the inverse of MarshalResponse.
func UnmarshalResponse(b []byte) (Response, error) {
	r := bytes.NewReader(b)
	var resp Response
	if err := binary.Read(r, byteOrder, &resp.ID); err != nil {
		return Response{}, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return Response{}, err
	}
	resp.Type = RequestType(typeByte)
	if err := binary.Read(r, byteOrder, &resp.StartIndex); err != nil {
		return Response{}, err
	}
	if err := binary.Read(r, byteOrder, &resp.EndIndex); err != nil {
		return Response{}, err
	}
	if err := binary.Read(r, byteOrder, &resp.ClusterIndex); err != nil {
		return Response{}, err
	}

	switch resp.Type {
	case TypeBatch, TypePartial:
		s, err := readSet(r)
		if err != nil {
			return Response{}, err
		}
		resp.Set = s
	case TypeAlignment:
		if err := binary.Read(r, byteOrder, &resp.Seq1ID); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.Seq2ID); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.Score); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.PAMDistance); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.PAMVariance); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.Seq1Min); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.Seq1Max); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.Seq2Min); err != nil {
			return Response{}, err
		}
		if err := binary.Read(r, byteOrder, &resp.Seq2Max); err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, byteOrder, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return "", err
	}
	return string(b), nil
}

