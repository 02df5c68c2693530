package persona

const rolePrompt = `You are the %s reviewer in a multi-role analysis panel. Answer only from that perspective.`

const roleQueryPrompt = `Question: %s
Location hints: %s

Give your position and the distinct beliefs behind it. Rate each belief's confidence from 0.0 to 1.0.
Raise flags only from this list when they apply: "regulatory_review", "compliance_gap", "location_specific", "multirole".

Respond ONLY with JSON, no markdown fences:
{"content":"one paragraph position","confidence":0.8,"beliefs":[{"content":"belief","confidence":0.8}],"flags":[]}`
