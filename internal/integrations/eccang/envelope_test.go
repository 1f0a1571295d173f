package eccang

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildEnvelope_EscapesEverything(t *testing.T) {
	env, err := BuildEnvelope("createOrder", `tok&<>"'`, "key<1>", map[string]any{"note": "a&b"})
	require.NoError(t, err)

	require.Contains(t, env, "<appToken>tok&amp;&lt;&gt;&quot;&apos;</appToken>")
	require.Contains(t, env, "<appKey>key&lt;1&gt;</appKey>")
	require.Contains(t, env, "<service>createOrder</service>")
	// JSON-строка параметров тоже экранируется целиком.
	require.Contains(t, env, `&quot;note&quot;:&quot;a&amp;b&quot;`)
	require.NotContains(t, env, `"note"`)
}

func TestBuildEnvelope_NilParams(t *testing.T) {
	env, err := BuildEnvelope("getCountry", "t", "k", nil)
	require.NoError(t, err)
	require.Contains(t, env, "<paramsJson>{}</paramsJson>")
}

func TestParseEnvelope_JSONStringResult(t *testing.T) {
	xml := `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ns1:callServiceResponse xmlns:ns1="http://tempuri.org/">
      <return><![CDATA[{"ask":"Success","order_code":"OC1"}]]></return>
    </ns1:callServiceResponse>
  </soap:Body>
</soap:Envelope>`

	res, err := ParseEnvelope([]byte(xml))
	require.NoError(t, err)

	m, ok := res.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Success", m["ask"])
	require.Equal(t, "OC1", m["order_code"])
}

func TestParseEnvelope_StructuredResult(t *testing.T) {
	xml := `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <callServiceResponse>
      <CallServiceResult>
        <ask>Success</ask>
        <data>
          <track_status>waiting</track_status>
        </data>
      </CallServiceResult>
    </callServiceResponse>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

	res, err := ParseEnvelope([]byte(xml))
	require.NoError(t, err)

	m, ok := res.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Success", m["ask"])
}

func TestParseEnvelope_RoundTrip(t *testing.T) {
	params := map[string]any{"a": 1}
	env, err := BuildEnvelope("echo", "t", "k", params)
	require.NoError(t, err)

	// Синтетический ответ: то, что ушло в paramsJson, возвращается в return.
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	require.Contains(t, env, "<paramsJson>"+xmlEscaper.Replace(string(paramsJSON))+"</paramsJson>")

	resp := fmt.Sprintf(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <callServiceResponse xmlns="http://tempuri.org/">
      <return>%s</return>
    </callServiceResponse>
  </soap:Body>
</soap:Envelope>`, xmlEscaper.Replace(string(paramsJSON)))

	res, err := ParseEnvelope([]byte(resp))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, res)
}

func TestParseEnvelope_ProtocolErrors(t *testing.T) {
	var perr *ProtocolError

	_, err := ParseEnvelope([]byte("not xml at all"))
	require.ErrorAs(t, err, &perr)

	_, err = ParseEnvelope([]byte(`<other><thing/></other>`))
	require.ErrorAs(t, err, &perr)

	noBody := `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><x/></soap:Envelope>`
	_, err = ParseEnvelope([]byte(noBody))
	require.ErrorAs(t, err, &perr)

	noResp := `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><unknownResponse/></soap:Body></soap:Envelope>`
	_, err = ParseEnvelope([]byte(noResp))
	require.ErrorAs(t, err, &perr)

	badJSON := strings.Replace(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body><callServiceResponse><return>JSONBODY</return></callServiceResponse></soap:Body>
</soap:Envelope>`, "JSONBODY", "{broken", 1)
	_, err = ParseEnvelope([]byte(badJSON))
	require.ErrorAs(t, err, &perr)
}
