package netmsg

// Message type tags. The integer field labelled "type" is always first by
// convention (spec.md §4.2), so PeekFirstInt identifies the shape before a
// full Decode. Values 0-6 mirror original_source/include/nilorea/
// n_network_msg.h's NETMSG_* constants; MsgTypeMetricSample is new in this
// repository, carrying weather-station telemetry over the binary codec.
const (
	MsgTypeIdentRequest  int32 = 0
	MsgTypeIdentReplyOK  int32 = 1
	MsgTypeIdentReplyNOK int32 = 2
	MsgTypeChatString    int32 = 3
	MsgTypePosition      int32 = 4
	MsgTypePingRequest   int32 = 5
	MsgTypePingReply     int32 = 6
	MsgTypeQuit          int32 = 7
	MsgTypeMetricSample  int32 = 9
)

// Ident is the (type, id, name, password) shape shared by IdentRequest and
// both IdentReply variants.
type Ident struct {
	Type     int32
	ID       int32
	Name     string
	Password string
}

// NewIdentMessage builds an encodable Message for any of the three ident
// shapes (request, reply-ok, reply-nok all share the same field layout).
func NewIdentMessage(typ int32, id int32, name, password string) *Message {
	m := New()
	m.AddInt(typ)
	m.AddInt(id)
	m.AddString(name)
	m.AddString(password)
	return m
}

// DecodeIdent pops an Ident's fields off a decoded Message.
func DecodeIdent(m *Message) (*Ident, error) {
	typ, err := m.PopInt()
	if err != nil {
		return nil, err
	}
	id, err := m.PopInt()
	if err != nil {
		return nil, err
	}
	name, err := m.PopString()
	if err != nil {
		return nil, err
	}
	pass, err := m.PopString()
	if err != nil {
		return nil, err
	}
	return &Ident{Type: typ, ID: id, Name: name, Password: pass}, nil
}

// Position is the (type, id, X, Y, vx, vy, ax, ay, timestamp) shape.
type Position struct {
	ID        int32
	X, Y      float64
	VX, VY    float64
	AX, AY    float64
	Timestamp int32
}

// NewPositionMessage builds an encodable Position message.
func NewPositionMessage(p *Position) *Message {
	m := New()
	m.AddInt(MsgTypePosition)
	m.AddInt(p.ID)
	m.AddFloat(p.X)
	m.AddFloat(p.Y)
	m.AddFloat(p.VX)
	m.AddFloat(p.VY)
	m.AddFloat(p.AX)
	m.AddFloat(p.AY)
	m.AddInt(p.Timestamp)
	return m
}

// DecodePosition pops a Position's fields off a decoded Message. The
// caller is expected to have already popped and checked the leading type
// int via PeekFirstInt/PopInt.
func DecodePosition(m *Message) (*Position, error) {
	p := &Position{}
	var err error
	if p.ID, err = m.PopInt(); err != nil {
		return nil, err
	}
	if p.X, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if p.Y, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if p.VX, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if p.VY, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if p.AX, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if p.AY, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if p.Timestamp, err = m.PopInt(); err != nil {
		return nil, err
	}
	return p, nil
}

// ChatString is the (type, id_from, id_to, color, name, channel, text) shape.
type ChatString struct {
	IDFrom, IDTo int32
	Color        int32
	Name         string
	Channel      string
	Text         string
}

// NewChatStringMessage builds an encodable ChatString message.
func NewChatStringMessage(c *ChatString) *Message {
	m := New()
	m.AddInt(MsgTypeChatString)
	m.AddInt(c.IDFrom)
	m.AddInt(c.IDTo)
	m.AddInt(c.Color)
	m.AddString(c.Name)
	m.AddString(c.Channel)
	m.AddString(c.Text)
	return m
}

// DecodeChatString pops a ChatString's fields off a decoded Message.
func DecodeChatString(m *Message) (*ChatString, error) {
	c := &ChatString{}
	var err error
	if c.IDFrom, err = m.PopInt(); err != nil {
		return nil, err
	}
	if c.IDTo, err = m.PopInt(); err != nil {
		return nil, err
	}
	if c.Color, err = m.PopInt(); err != nil {
		return nil, err
	}
	if c.Name, err = m.PopString(); err != nil {
		return nil, err
	}
	if c.Channel, err = m.PopString(); err != nil {
		return nil, err
	}
	if c.Text, err = m.PopString(); err != nil {
		return nil, err
	}
	return c, nil
}

// Ping is the (type, id_from, id_to, time) shape shared by PingRequest and
// PingReply.
type Ping struct {
	IDFrom, IDTo int32
	Time         int32
}

// NewPingMessage builds an encodable ping message (request or reply,
// selected by typ).
func NewPingMessage(typ int32, p *Ping) *Message {
	m := New()
	m.AddInt(typ)
	m.AddInt(p.IDFrom)
	m.AddInt(p.IDTo)
	m.AddInt(p.Time)
	return m
}

// DecodePing pops a Ping's fields off a decoded Message.
func DecodePing(m *Message) (*Ping, error) {
	p := &Ping{}
	var err error
	if p.IDFrom, err = m.PopInt(); err != nil {
		return nil, err
	}
	if p.IDTo, err = m.PopInt(); err != nil {
		return nil, err
	}
	if p.Time, err = m.PopInt(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewQuitMessage builds the single-field (type) Quit message.
func NewQuitMessage() *Message {
	m := New()
	m.AddInt(MsgTypeQuit)
	return m
}

// MetricSample is this repository's addition: a weather station reading
// carried over the binary codec in place of the teacher's JSON
// MetricsMessage. Shape: (type, stationID, temperature, humidity,
// pressure, windSpeed, timestamp).
type MetricSample struct {
	StationID   int32
	Temperature float64
	Humidity    float64
	Pressure    float64
	WindSpeed   float64
	Timestamp   int32
}

// NewMetricSampleMessage builds an encodable MetricSample message.
func NewMetricSampleMessage(s *MetricSample) *Message {
	m := New()
	m.AddInt(MsgTypeMetricSample)
	m.AddInt(s.StationID)
	m.AddFloat(s.Temperature)
	m.AddFloat(s.Humidity)
	m.AddFloat(s.Pressure)
	m.AddFloat(s.WindSpeed)
	m.AddInt(s.Timestamp)
	return m
}

// DecodeMetricSample pops a MetricSample's fields off a decoded Message.
func DecodeMetricSample(m *Message) (*MetricSample, error) {
	s := &MetricSample{}
	var err error
	if s.StationID, err = m.PopInt(); err != nil {
		return nil, err
	}
	if s.Temperature, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if s.Humidity, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if s.Pressure, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if s.WindSpeed, err = m.PopFloat(); err != nil {
		return nil, err
	}
	if s.Timestamp, err = m.PopInt(); err != nil {
		return nil, err
	}
	return s, nil
}
