package eccang

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clbanning/mxj/v2"
	"github.com/pkg/errors"
)

const soapNamespace = "http://tempuri.org/"

// Шаблон фиксированный: провайдер принимает единственную операцию
// callService, а реальные параметры едут JSON-строкой в paramsJson.
const envelopeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <callService xmlns="http://tempuri.org/">
      <appToken>%s</appToken>
      <appKey>%s</appKey>
      <service>%s</service>
      <paramsJson>%s</paramsJson>
    </callService>
  </soap:Body>
</soap:Envelope>`

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func BuildEnvelope(service, appToken, appKey string, params any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", errors.Wrap(err, "marshal params")
	}

	return fmt.Sprintf(envelopeTemplate,
		xmlEscaper.Replace(appToken),
		xmlEscaper.Replace(appKey),
		xmlEscaper.Replace(service),
		xmlEscaper.Replace(string(paramsJSON)),
	), nil
}

// ParseEnvelope разбирает ответный XML и достаёт бизнес-нагрузку.
// Провайдер непостоянен: между инсталляциями/версиями меняются
// namespace-префиксы конверта и имя узла ответа, а сам результат
// приходит либо JSON-строкой, либо уже развёрнутым объектом.
func ParseEnvelope(body []byte) (any, error) {
	doc, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, &ProtocolError{Reason: "unparseable xml", Err: err}
	}

	env, ok := childMap(map[string]any(doc),
		"soap:Envelope", "Envelope", "SOAP-ENV:Envelope", "soapenv:Envelope")
	if !ok {
		return nil, &ProtocolError{Reason: "no soap envelope"}
	}

	soapBody, ok := childMap(env, "soap:Body", "Body", "SOAP-ENV:Body", "soapenv:Body")
	if !ok {
		return nil, &ProtocolError{Reason: "no soap body"}
	}

	respNode, ok := childMap(soapBody,
		"callServiceResponse",
		"ns1:callServiceResponse",
		"ns2:callServiceResponse",
		"soap:callServiceResponse",
		"response")
	if !ok {
		return nil, &ProtocolError{Reason: "no callServiceResponse node"}
	}

	var result any = respNode
	for _, k := range []string{"return", "CallServiceResult", "response"} {
		if v, ok := respNode[k]; ok && v != nil {
			result = v
			break
		}
	}

	switch t := result.(type) {
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return nil, &ProtocolError{Reason: "result is not valid json", Err: err}
		}
		return decoded, nil
	case map[string]any:
		return t, nil
	}

	return nil, &ProtocolError{Reason: "unexpected result payload"}
}

func childMap(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, k := range keys {
		if c, ok := m[k].(map[string]any); ok {
			return c, true
		}
	}
	return nil, false
}
