package ollama

// visionExtractionPrompt instructs the vision model to behave as a plain
// OCR engine. The analysis prompts live in internal/core/prompt; this one
// belongs to the fallback extractor alone.
const visionExtractionPrompt = `Extrae TODO el texto de este documento. Incluye texto de imágenes escaneadas. Devuelve SOLO el texto extraído sin comentarios adicionales.`
