package ingest

// The zeek and zeektype struct tags drive the reflection based TSV parser:
// zeek holds the field name as it appears in the log header and zeektype
// holds the Zeek type used to pick the right conversion. The json tags cover
// logs written with Zeek's JSON writer. Header fields with no matching struct
// field are skipped.

// Conn represents a single line in a Zeek conn log.
type Conn struct {
	TimeStamp       float64 `json:"ts" zeek:"ts" zeektype:"time"`
	UID             string  `json:"uid" zeek:"uid" zeektype:"string"`
	Source          string  `json:"id.orig_h" zeek:"id.orig_h" zeektype:"addr"`
	SourcePort      int     `json:"id.orig_p" zeek:"id.orig_p" zeektype:"port"`
	Destination     string  `json:"id.resp_h" zeek:"id.resp_h" zeektype:"addr"`
	DestinationPort int     `json:"id.resp_p" zeek:"id.resp_p" zeektype:"port"`
	Proto           string  `json:"proto" zeek:"proto" zeektype:"enum"`
	Service         string  `json:"service" zeek:"service" zeektype:"string"`
	Duration        float64 `json:"duration" zeek:"duration" zeektype:"interval"`
	OrigBytes       int64   `json:"orig_bytes" zeek:"orig_bytes" zeektype:"count"`
	RespBytes       int64   `json:"resp_bytes" zeek:"resp_bytes" zeektype:"count"`
	ConnState       string  `json:"conn_state" zeek:"conn_state" zeektype:"string"`
	MissedBytes     int64   `json:"missed_bytes" zeek:"missed_bytes" zeektype:"count"`
	History         string  `json:"history" zeek:"history" zeektype:"string"`
	OrigPackets     int64   `json:"orig_pkts" zeek:"orig_pkts" zeektype:"count"`
	OrigIPBytes     int64   `json:"orig_ip_bytes" zeek:"orig_ip_bytes" zeektype:"count"`
	RespPackets     int64   `json:"resp_pkts" zeek:"resp_pkts" zeektype:"count"`
	RespIPBytes     int64   `json:"resp_ip_bytes" zeek:"resp_ip_bytes" zeektype:"count"`
	LogPath         string  `json:"-"`
}

// HTTP represents a single line in a Zeek http log.
type HTTP struct {
	TimeStamp       float64  `json:"ts" zeek:"ts" zeektype:"time"`
	UID             string   `json:"uid" zeek:"uid" zeektype:"string"`
	Source          string   `json:"id.orig_h" zeek:"id.orig_h" zeektype:"addr"`
	SourcePort      int      `json:"id.orig_p" zeek:"id.orig_p" zeektype:"port"`
	Destination     string   `json:"id.resp_h" zeek:"id.resp_h" zeektype:"addr"`
	DestinationPort int      `json:"id.resp_p" zeek:"id.resp_p" zeektype:"port"`
	TransDepth      int64    `json:"trans_depth" zeek:"trans_depth" zeektype:"count"`
	Method          string   `json:"method" zeek:"method" zeektype:"string"`
	Host            string   `json:"host" zeek:"host" zeektype:"string"`
	URI             string   `json:"uri" zeek:"uri" zeektype:"string"`
	Referrer        string   `json:"referrer" zeek:"referrer" zeektype:"string"`
	Version         string   `json:"version" zeek:"version" zeektype:"string"`
	UserAgent       string   `json:"user_agent" zeek:"user_agent" zeektype:"string"`
	RequestBodyLen  int64    `json:"request_body_len" zeek:"request_body_len" zeektype:"count"`
	ResponseBodyLen int64    `json:"response_body_len" zeek:"response_body_len" zeektype:"count"`
	StatusCode      int64    `json:"status_code" zeek:"status_code" zeektype:"count"`
	StatusMsg       string   `json:"status_msg" zeek:"status_msg" zeektype:"string"`
	Username        string   `json:"username" zeek:"username" zeektype:"string"`
	Password        string   `json:"password" zeek:"password" zeektype:"string"`
	OrigFUIDs       []string `json:"orig_fuids" zeek:"orig_fuids" zeektype:"vector[string]"`
	OrigMIMETypes   []string `json:"orig_mime_types" zeek:"orig_mime_types" zeektype:"vector[string]"`
	RespFUIDs       []string `json:"resp_fuids" zeek:"resp_fuids" zeektype:"vector[string]"`
	RespMIMETypes   []string `json:"resp_mime_types" zeek:"resp_mime_types" zeektype:"vector[string]"`
	LogPath         string   `json:"-"`
}

// SSL represents a single line in a Zeek ssl log.
type SSL struct {
	TimeStamp       float64 `json:"ts" zeek:"ts" zeektype:"time"`
	UID             string  `json:"uid" zeek:"uid" zeektype:"string"`
	Source          string  `json:"id.orig_h" zeek:"id.orig_h" zeektype:"addr"`
	SourcePort      int     `json:"id.orig_p" zeek:"id.orig_p" zeektype:"port"`
	Destination     string  `json:"id.resp_h" zeek:"id.resp_h" zeektype:"addr"`
	DestinationPort int     `json:"id.resp_p" zeek:"id.resp_p" zeektype:"port"`
	Version         string  `json:"version" zeek:"version" zeektype:"string"`
	Cipher          string  `json:"cipher" zeek:"cipher" zeektype:"string"`
	Curve           string  `json:"curve" zeek:"curve" zeektype:"string"`
	ServerName      string  `json:"server_name" zeek:"server_name" zeektype:"string"`
	Resumed         bool    `json:"resumed" zeek:"resumed" zeektype:"bool"`
	NextProtocol    string  `json:"next_protocol" zeek:"next_protocol" zeektype:"string"`
	Established     bool    `json:"established" zeek:"established" zeektype:"bool"`
	JA3             string  `json:"ja3" zeek:"ja3" zeektype:"string"`
	JA3S            string  `json:"ja3s" zeek:"ja3s" zeektype:"string"`
	LogPath         string  `json:"-"`
}
