package openai

// System prompt dipaksa balikin JSON object polos supaya gampang diparse.
// Confidence selalu skala 0-100 biar konsisten dengan kontrak record.

const systemPrompt = `You are an image analysis engine. You inspect one image and answer with a single JSON object only, no markdown, no prose. Every confidence value is a number between 0 and 100.`

const labelsPrompt = `List the objects and scenes visible in this image. Respond with JSON exactly in this shape:
{"labels":[{"name":"Cat","confidence":98.2}]}
Order labels by confidence descending. Use concise singular English nouns. Include at most 20 labels.`

const moderationPrompt = `Check this image for unsafe or sensitive content (nudity, violence, weapons, drugs, hate symbols, gore). Respond with JSON exactly in this shape:
{"moderationLabels":[{"name":"Graphic Violence","confidence":91.5,"category":"Violence"}]}
If the image is safe, respond with {"moderationLabels":[]}.`

const textPrompt = `Transcribe any readable text in this image. Respond with JSON exactly in this shape:
{"textDetections":[{"text":"STOP","confidence":99.0}]}
If there is no readable text, respond with {"textDetections":[]}.`
